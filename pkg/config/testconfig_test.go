package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/virtualtestset/vpac/pkg/sequence"
	"github.com/virtualtestset/vpac/pkg/testers"
)

func writeYAML(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestLoadRampTestConfigConverts(t *testing.T) {
	path := writeYAML(t, `
stream_id: s1
variable: I-A
start_value: 0
end_value: 10
step_size: 0.5
step_duration_sec: 0.2
monitor_trip: true
`)
	tcfg, err := LoadRampTestConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "s1", tcfg.StreamID)

	rcfg := tcfg.ToTesterConfig()
	assert.Equal(t, testers.VarIA, rcfg.Variable)
	assert.Equal(t, 10.0, rcfg.EndValue)
	assert.True(t, rcfg.MonitorTrip)
}

func TestLoadDistanceTestConfigConverts(t *testing.T) {
	path := writeYAML(t, `
stream_id: s1
v_prefault: 120
freq_hz: 60
source:
  r1: 1
  x1: 10
  r0: 2
  x0: 20
points:
  - r: 5
    x: 15
    fault_type: AG
    label: zone1
auto_refine: true
refine_levels: 2
`)
	tcfg, err := LoadDistanceTestConfig(path)
	require.NoError(t, err)

	dcfg := tcfg.ToTesterConfig()
	require.Len(t, dcfg.Points, 1)
	assert.Equal(t, 5.0, dcfg.Points[0].R)
	assert.Equal(t, "zone1", dcfg.Points[0].Label)
	assert.Equal(t, 10.0, dcfg.Source.X1)
	assert.True(t, dcfg.AutoRefine)
	assert.Equal(t, 2, dcfg.RefineLevels)
}

func TestLoadOvercurrentTestConfigConverts(t *testing.T) {
	path := writeYAML(t, `
stream_id: s1
variable: I-A
curve: IEC_SI
tms: 0.3
i_pickup: 100
tolerance_percent: true
tolerance: 5
points:
  - m: 2
    label: "2x"
  - m: 10
    label: "10x"
`)
	tcfg, err := LoadOvercurrentTestConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "I-A", tcfg.Variable)

	ocfg := tcfg.ToTesterConfig()
	require.Len(t, ocfg.Points, 2)
	assert.Equal(t, testers.TolerancePercent, ocfg.ToleranceMode)
	assert.Equal(t, testers.Curve("IEC_SI"), ocfg.Curve)
}

func TestLoadDifferentialTestConfigConverts(t *testing.T) {
	path := writeYAML(t, `
stream_id_1: s1
stream_id_2: s2
variable: I-A
points:
  - i_r: 5
    i_d: 1
    label: low-restraint
`)
	tcfg, err := LoadDifferentialTestConfig(path)
	require.NoError(t, err)

	dcfg := tcfg.ToTesterConfig()
	require.Len(t, dcfg.Points, 1)
	assert.Equal(t, 5.0, dcfg.Points[0].IR)
	assert.Equal(t, 1.0, dcfg.Points[0].ID)
}

func TestLoadSequenceConfigConvertsStreamStates(t *testing.T) {
	path := writeYAML(t, `
name: fault-then-clear
states:
  - name: prefault
    duration_sec: 1
    transition: TIME
    stream_states:
      s1:
        freq_hz: 60
        components:
          V-A:
            magnitude_primary: 120
            angle_rad: 0
  - name: fault
    duration_sec: 0.1
    transition: GOOSE_TRIP
    stream_states:
      s1:
        freq_hz: 60
        components:
          V-A:
            magnitude_primary: 20
            angle_rad: 0
`)
	scfg, err := LoadSequenceConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "fault-then-clear", scfg.Name)

	seq := scfg.ToSequence()
	require.Len(t, seq.States, 2)
	assert.Equal(t, sequence.TransitionTime, seq.States[0].Transition)
	assert.Equal(t, sequence.TransitionGooseTrip, seq.States[1].Transition)

	s1 := seq.States[1].StreamStates["s1"]
	require.NotNil(t, s1)
	assert.Equal(t, 20.0, s1.Components["V-A"].MagnitudePrimary)
}
