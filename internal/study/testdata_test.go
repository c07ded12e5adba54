package study_test

const definition = `
apiVersion: v1
kind: Study
metadata:
  name: example
paths:
  templates: templates
stages:
  - name: preprocess
    prefix: mask
    templates: [example.mask]
    parameters:
      seed: [1, 2]
      qp: 2
      tune: [62.28, "62.31"]
    settings:
      madx_exe: /usr/bin/madx
      turns: 1000
    outputs: [fc.2, fc.8]
  - name: sixtrack
    parent: preprocess
    prefix: sixtrack_job
    parameters:
      amp: [[8, 10], [10, 12]]
    outputs: [fort.10.gz]
    records:
      artifact: fort_10_gz
      format: fort10
`
