package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decode(t *testing.T, input string) *Workflow {
	t.Helper()
	doc, err := ParseDocument("test.yml", []byte(input))
	require.NoError(t, err)
	wf, err := DecodeWorkflow(doc)
	require.NoError(t, err)
	return wf
}

func TestTriggerForms(t *testing.T) {
	scalar := decode(t, "on: push\njobs:\n  a:\n    runs-on: ubuntu-latest\n    steps: []\n")
	require.Len(t, scalar.On.Events, 1)
	assert.Equal(t, "push", scalar.On.Events[0].Name)
	assert.Nil(t, scalar.On.Events[0].Config)

	seq := decode(t, "on: [push, pull_request]\njobs:\n  a:\n    runs-on: ubuntu-latest\n    steps: []\n")
	require.Len(t, seq.On.Events, 2)
	assert.True(t, seq.On.Has("pull_request"))

	keyed := decode(t, `on:
  push:
    branches: [main]
  schedule:
    - cron: '0 4 * * *'
jobs:
  a:
    runs-on: ubuntu-latest
    steps: []
`)
	require.Len(t, keyed.On.Events, 2)
	assert.Equal(t, "push", keyed.On.Events[0].Name)
	assert.NotNil(t, keyed.On.Events[0].Config)
}

func TestPermissionForms(t *testing.T) {
	unset := decode(t, "on: push\njobs:\n  a:\n    runs-on: ubuntu-latest\n    steps: []\n")
	assert.Equal(t, PermUnset, unset.Permissions.Base)

	readAll := decode(t, "on: push\npermissions: read-all\njobs:\n  a:\n    runs-on: ubuntu-latest\n    steps: []\n")
	assert.Equal(t, PermReadAll, readAll.Permissions.Base)

	empty := decode(t, "on: push\npermissions: {}\njobs:\n  a:\n    runs-on: ubuntu-latest\n    steps: []\n")
	assert.Equal(t, PermEmpty, empty.Permissions.Base)

	scoped := decode(t, `on: push
permissions:
  contents: read
  id-token: write
jobs:
  a:
    runs-on: ubuntu-latest
    steps: []
`)
	assert.Equal(t, PermScoped, scoped.Permissions.Base)
	require.Len(t, scoped.Permissions.Scopes, 2)
	assert.Equal(t, "contents", scoped.Permissions.Scopes[0].Scope)
	assert.Equal(t, "read", scoped.Permissions.Scopes[0].Access)
	assert.True(t, scoped.Permissions.HasWrite())
}

func TestPermissionsInvalidShorthand(t *testing.T) {
	doc, err := ParseDocument("bad.yml", []byte("on: push\npermissions: everything\njobs:\n  a:\n    steps: []\n"))
	require.NoError(t, err)
	_, err = DecodeWorkflow(doc)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "permissions")
}

func TestRunsOnForms(t *testing.T) {
	scalar := decode(t, "on: push\njobs:\n  a:\n    runs-on: ubuntu-latest\n    steps: []\n")
	require.Len(t, scalar.Jobs[0].RunsOn.Labels, 1)
	assert.Equal(t, "ubuntu-latest", scalar.Jobs[0].RunsOn.Labels[0].Value)

	seq := decode(t, "on: push\njobs:\n  a:\n    runs-on: [self-hosted, linux]\n    steps: []\n")
	require.Len(t, seq.Jobs[0].RunsOn.Labels, 2)

	group := decode(t, `on: push
jobs:
  a:
    runs-on:
      group: ubuntu-runners
      labels: [trusted]
    steps: []
`)
	require.NotNil(t, group.Jobs[0].RunsOn.Group)
	assert.Equal(t, "ubuntu-runners", group.Jobs[0].RunsOn.Group.Value)
	require.Len(t, group.Jobs[0].RunsOn.GroupLabels, 1)
}

func TestReusableCall(t *testing.T) {
	inherit := decode(t, `on: push
jobs:
  call:
    uses: octo-org/shared/.github/workflows/ci.yml@v1
    secrets: inherit
`)
	job := inherit.Jobs[0]
	assert.True(t, job.IsReusable())
	require.NotNil(t, job.Secrets)
	assert.True(t, job.Secrets.Inherit)

	explicit := decode(t, `on: push
jobs:
  call:
    uses: octo-org/shared/.github/workflows/ci.yml@v1
    secrets:
      token: ${{ secrets.PAT }}
`)
	require.NotNil(t, explicit.Jobs[0].Secrets)
	assert.False(t, explicit.Jobs[0].Secrets.Inherit)
	require.Len(t, explicit.Jobs[0].Secrets.Items, 1)
	assert.Equal(t, "token", explicit.Jobs[0].Secrets.Items[0].Name)
}

func TestContainerAndServices(t *testing.T) {
	wf := decode(t, `on: push
jobs:
  a:
    runs-on: ubuntu-latest
    container:
      image: registry.example.com/tools:1.0
      credentials:
        username: admin
        password: hackme
    services:
      redis:
        image: redis
    steps: []
`)
	job := wf.Jobs[0]
	require.NotNil(t, job.Container)
	assert.Equal(t, "registry.example.com/tools:1.0", job.Container.Image.Value)
	require.NotNil(t, job.Container.Credentials)
	assert.Equal(t, "hackme", job.Container.Credentials.Password.Raw)
	require.Len(t, job.Services, 1)
	assert.Equal(t, "redis", job.Services[0].Name)
}

func TestStepKinds(t *testing.T) {
	wf := decode(t, `on: push
jobs:
  a:
    runs-on: ubuntu-latest
    steps:
      - id: co
        uses: actions/checkout@v4
        with:
          persist-credentials: false
      - name: Test
        if: github.ref == 'refs/heads/main'
        run: make test
        shell: bash
        working-directory: src
        env:
          CI: "true"
`)
	steps := wf.Jobs[0].Steps
	require.Len(t, steps, 2)

	assert.True(t, steps[0].IsUses())
	persist, ok := steps[0].WithValue("persist-credentials")
	require.True(t, ok)
	assert.Equal(t, "false", persist.Raw)

	assert.True(t, steps[1].IsRun())
	assert.Equal(t, "make test", steps[1].Run.Value)
	assert.Equal(t, "bash", steps[1].Shell.Value)
	ci, ok := steps[1].Env.Get("CI")
	require.True(t, ok)
	assert.Equal(t, "true", ci.Raw)
}

func TestDuplicateStepIDsRejected(t *testing.T) {
	doc, err := ParseDocument("dup.yml", []byte(`on: push
jobs:
  a:
    runs-on: ubuntu-latest
    steps:
      - id: x
        run: one
      - id: x
        run: two
`))
	require.NoError(t, err)
	_, err = DecodeWorkflow(doc)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate step id")
}

func TestNonStringRejectedInStringPosition(t *testing.T) {
	doc, err := ParseDocument("bad.yml", []byte(`on: push
jobs:
  a:
    runs-on: ubuntu-latest
    steps:
      - run: true
`))
	require.NoError(t, err)
	_, err = DecodeWorkflow(doc)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expected a string")
}

func TestUnknownFieldsRetained(t *testing.T) {
	wf := decode(t, `on: push
x-custom: anything
jobs:
  a:
    runs-on: ubuntu-latest
    x-internal: 42
    steps: []
`)
	assert.Contains(t, wf.Unknown, "x-custom")
	assert.Contains(t, wf.Jobs[0].Unknown, "x-internal")
}

func TestActionDecoding(t *testing.T) {
	doc, err := ParseDocument("action.yml", []byte(`name: Setup Tool
description: installs the tool
inputs:
  version:
    default: latest
runs:
  using: composite
  steps:
    - run: ./install.sh
      shell: bash
`))
	require.NoError(t, err)
	action, err := DecodeAction(doc)
	require.NoError(t, err)
	assert.Equal(t, ActionComposite, action.Kind())
	require.Len(t, action.Runs.Steps, 1)
	assert.Equal(t, "./install.sh", action.Runs.Steps[0].Run.Value)

	docker, err := ParseDocument("action.yml", []byte(`name: Docker Action
description: runs in a container
runs:
  using: docker
  image: Dockerfile
`))
	require.NoError(t, err)
	dockerAction, err := DecodeAction(docker)
	require.NoError(t, err)
	assert.Equal(t, ActionDocker, dockerAction.Kind())

	js, err := ParseDocument("action.yml", []byte(`name: JS Action
description: node entry point
runs:
  using: node20
  main: dist/index.js
`))
	require.NoError(t, err)
	jsAction, err := DecodeAction(js)
	require.NoError(t, err)
	assert.Equal(t, ActionJavaScript, jsAction.Kind())
	assert.Equal(t, "dist/index.js", jsAction.Runs.Main.Value)
}

func TestJobsOrderPreserved(t *testing.T) {
	wf := decode(t, `on: push
jobs:
  zeta:
    runs-on: ubuntu-latest
    steps: []
  alpha:
    runs-on: ubuntu-latest
    steps: []
`)
	require.Len(t, wf.Jobs, 2)
	assert.Equal(t, "zeta", wf.Jobs[0].ID)
	assert.Equal(t, "alpha", wf.Jobs[1].ID)
}
