package models

// All lists the statically-shaped models migrated by gorm. The
// per-stage work unit, task and result tables are dynamic and are
// created from the study definition instead.
var All = []any{
	&Study{},
	&Template{},
}
