package status

import (
	"fmt"
	"strconv"

	"github.com/caesium-cloud/sweep/api/rest/service/unit"
	"github.com/caesium-cloud/sweep/cmd/common"
	"github.com/caesium-cloud/sweep/internal/models"
	"github.com/caesium-cloud/sweep/internal/store/query"
	"github.com/caesium-cloud/sweep/internal/study"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"
)

var (
	stage  string
	status string
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	statusColor = map[models.Status]lipgloss.Color{
		models.StatusIncomplete: lipgloss.Color("3"),
		models.StatusSubmitted:  lipgloss.Color("4"),
		models.StatusComplete:   lipgloss.Color("2"),
	}
)

var statuses = []models.Status{models.StatusIncomplete, models.StatusSubmitted, models.StatusComplete}

// Cmd is the status command.
var Cmd = &cobra.Command{
	Use:     "status",
	Short:   "Summarise work units per stage and status",
	Example: "sweep status --stage preprocess --status incomplete",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		s, err := common.Open(ctx)
		if err != nil {
			return err
		}
		defer s.Close()

		stages, err := s.Stages(stage)
		if err != nil {
			return err
		}

		if status == "" {
			return summary(cmd, s, stages)
		}

		for _, st := range stages {
			svc, err := unit.Service(ctx, s.Definition, s.Store, st.Name)
			if err != nil {
				return err
			}
			units, err := svc.List(&unit.ListRequest{Status: models.Status(status)})
			if err != nil {
				return err
			}
			if err := common.Printf(cmd, "%s\n%s\n", st.Name, unitTable(units)); err != nil {
				return err
			}
		}

		return nil
	},
}

func init() {
	Cmd.Flags().StringVar(&stage, "stage", "", "Stage to report (default: every stage)")
	Cmd.Flags().StringVar(&status, "status", "", "List the units in this status instead of counting")
}

func summary(cmd *cobra.Command, s *common.Session, stages []*study.Stage) error {
	t := newTable("stage", "incomplete", "submitted", "complete", "tasks")

	for _, st := range stages {
		row := []string{st.Name}
		for _, want := range statuses {
			n, err := s.Store.Count(cmd.Context(), st.UnitTable(), query.Where(models.ColStatus, query.Eq, string(want)))
			if err != nil {
				return err
			}
			row = append(row, strconv.FormatInt(n, 10))
		}

		n, err := s.Store.Count(cmd.Context(), st.TaskTable(), nil)
		if err != nil {
			return err
		}
		t.Row(append(row, strconv.FormatInt(n, 10))...)
	}

	return common.Printf(cmd, "%s\n", t)
}

func unitTable(units models.WorkUnits) *table.Table {
	t := newTable("wu_id", "job_name", "status", "batch_name", "task_id")

	for _, u := range units {
		task := "-"
		if u.TaskID != nil {
			task = fmt.Sprint(*u.TaskID)
		}
		state := lipgloss.NewStyle().Foreground(statusColor[u.Status]).Render(string(u.Status))
		t.Row(strconv.FormatInt(u.ID, 10), u.JobName, state, u.BatchName, task)
	}

	return t
}

func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.NormalBorder()).
		Headers(headers...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})
}
