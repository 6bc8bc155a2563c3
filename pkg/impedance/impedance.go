// Package impedance implements the symmetrical-components fault calculator:
// a pure function from (fault type, fault impedance, source impedance,
// prefault voltage) to the resulting per-phase voltage and current phasors
// at the relay terminals under a simple Thevenin model.
package impedance

import (
	"fmt"
	"math"
	"math/cmplx"

	"github.com/virtualtestset/vpac/pkg/errs"
	"github.com/virtualtestset/vpac/pkg/phasor"
	"github.com/virtualtestset/vpac/pkg/sv"
)

// FaultType enumerates the ten supported fault configurations.
type FaultType string

const (
	AG  FaultType = "AG"
	BG  FaultType = "BG"
	CG  FaultType = "CG"
	AB  FaultType = "AB"
	BC  FaultType = "BC"
	CA  FaultType = "CA"
	ABG FaultType = "ABG"
	BCG FaultType = "BCG"
	CAG FaultType = "CAG"
	ABC FaultType = "ABC"
)

// FaultSpec is the fault under test: type plus fault impedance.
type FaultSpec struct {
	Type FaultType
	Rf   float64
	Xf   float64
}

// SourceImpedance is the Thevenin source behind the relay terminals.
// Negative-sequence impedance is taken equal to positive-sequence, the
// conventional assumption for a static network (no rotating machines
// modeled in this source-impedance contract).
type SourceImpedance struct {
	R1, X1 float64
	R0, X0 float64
}

func (s SourceImpedance) z1() complex128 { return complex(s.R1, s.X1) }
func (s SourceImpedance) z0() complex128 { return complex(s.R0, s.X0) }

// alpha is the 120-degree sequence rotation operator.
var alpha = cmplx.Rect(1, 2*math.Pi/3)

// phaseIndex maps a phase letter to its position in the canonical A,B,C
// ordering used for the local-frame rotation below.
const (
	phaseA = 0
	phaseB = 1
	phaseC = 2
)

// rotateToPhysical maps local-frame sequence-derived values (local0 is the
// designated reference phase, local1/local2 follow by sequence rotation)
// onto physical A,B,C given which physical phase occupies the local0
// position.
func rotateToPhysical(localRef int, v0, v1, v2 complex128) (a, b, c complex128) {
	local := [3]complex128{v0, v1, v2}
	out := [3]complex128{}
	out[localRef] = local[0]
	out[(localRef+1)%3] = local[1]
	out[(localRef+2)%3] = local[2]
	return out[phaseA], out[phaseB], out[phaseC]
}

type phaseResult struct {
	Va, Vb, Vc complex128
	Ia, Ib, Ic complex128
}

// Calculate computes the complete fault response and returns it as a
// PhasorState ready to be pushed into the publisher manager.
func Calculate(fault FaultSpec, src SourceImpedance, vPrefault float64, freqHz float64) (*sv.PhasorState, error) {
	const op = "impedance.Calculate"
	if fault.Rf < 0 || fault.Xf < 0 {
		return nil, errs.New(errs.KindConfigInvalid, op, fmt.Errorf("fault impedance must have non-negative R and X"))
	}

	vpf := complex(vPrefault, 0)
	zf := complex(fault.Rf, fault.Xf)
	z1 := src.z1()
	z0 := src.z0()

	var r phaseResult
	switch fault.Type {
	case AG, BG, CG:
		r = singleLineGround(fault.Type, vpf, z1, z0, zf)
	case AB, BC, CA:
		r = phaseToPhase(fault.Type, vpf, z1, zf)
	case ABG, BCG, CAG:
		r = twoPhaseGround(fault.Type, vpf, z1, z0, zf)
	case ABC:
		r = threePhase(vpf, z1, zf)
	default:
		return nil, errs.New(errs.KindConfigInvalid, op, fmt.Errorf("unknown fault type %q", fault.Type))
	}

	state := &sv.PhasorState{
		FreqHz: freqHz,
		Components: map[phasor.Channel]phasor.Component{
			phasor.ChVA: fromComplex(r.Va),
			phasor.ChVB: fromComplex(r.Vb),
			phasor.ChVC: fromComplex(r.Vc),
			phasor.ChIA: fromComplex(r.Ia),
			phasor.ChIB: fromComplex(r.Ib),
			phasor.ChIC: fromComplex(r.Ic),
		},
	}
	return state, nil
}

func fromComplex(v complex128) phasor.Component {
	return phasor.Component{
		MagnitudePrimary: cmplx.Abs(v),
		AngleRad:         phasor.NormalizeAngle(cmplx.Phase(v)),
	}
}

func faultIndex(t FaultType) int {
	switch t {
	case AG:
		return phaseA
	case BG:
		return phaseB
	case CG:
		return phaseC
	default:
		return phaseA
	}
}

// singleLineGround implements the single-line-to-ground (AG) formula,
// generalized to BG/CG by
// rotating which physical phase occupies the faulted (local0) position.
func singleLineGround(t FaultType, vpf, z1, z0, zf complex128) phaseResult {
	i1 := vpf / (2*z1 + z0 + 3*zf)
	i2 := i1
	i0 := i1

	v1 := vpf - i1*z1
	v2 := -i2 * z1
	v0 := -i0 * z0

	f := faultIndex(t)
	ia, ib, ic := rotateToPhysical(f, i0+i1+i2, i0+alpha*alpha*i1+alpha*i2, i0+alpha*i1+alpha*alpha*i2)
	va, vb, vc := rotateToPhysical(f, v0+v1+v2, v0+alpha*alpha*v1+alpha*v2, v0+alpha*v1+alpha*alpha*v2)

	return phaseResult{Va: va, Vb: vb, Vc: vc, Ia: ia, Ib: ib, Ic: ic}
}

// unfaultedIndex returns the physical phase left out of a two-phase fault
// name (AB/BC/CA, or the "G" variants), which serves as the local
// reference phase in the rotation below.
func unfaultedIndex(t FaultType) int {
	switch t {
	case AB, ABG:
		return phaseC
	case BC, BCG:
		return phaseA
	case CA, CAG:
		return phaseB
	default:
		return phaseA
	}
}

// phaseToPhase implements the phase-to-phase (AB/BC/CA) formula, generalized via
// rotation around the fault type's unfaulted phase.
func phaseToPhase(t FaultType, vpf, z1, zf complex128) phaseResult {
	i1 := vpf / (2*z1 + zf)
	i2 := -i1

	v1 := vpf - i1*z1
	v2 := -i2 * z1

	u := unfaultedIndex(t)
	ia, ib, ic := rotateToPhysical(u, 0, alpha*alpha*i1+alpha*i2, alpha*i1+alpha*alpha*i2)
	va, vb, vc := rotateToPhysical(u, v1+v2, alpha*alpha*v1+alpha*v2, alpha*v1+alpha*alpha*v2)

	return phaseResult{Va: va, Vb: vb, Vc: vc, Ia: ia, Ib: ib, Ic: ic}
}

// twoPhaseGround implements the ABG/BCG/CAG case: positive sequence in
// series with the negative/zero sequence networks combined in parallel.
func twoPhaseGround(t FaultType, vpf, z1, z0, zf complex128) phaseResult {
	zPar := (z1 * (z0 + 3*zf)) / (z1 + z0 + 3*zf)
	i1 := vpf / (z1 + zPar)
	v1 := vpf - i1*z1

	i2 := -v1 / z1
	i0 := -v1 / (z0 + 3*zf)

	v2 := -i2 * z1 // equals v1
	v0 := -i0 * z0 // differs from v1 once 3*zf enters the ground branch

	u := unfaultedIndex(t)
	ia, ib, ic := rotateToPhysical(u, i0+i1+i2, i0+alpha*alpha*i1+alpha*i2, i0+alpha*i1+alpha*alpha*i2)
	va, vb, vc := rotateToPhysical(u, v0+v1+v2, v0+alpha*alpha*v1+alpha*v2, v0+alpha*v1+alpha*alpha*v2)

	return phaseResult{Va: va, Vb: vb, Vc: vc, Ia: ia, Ib: ib, Ic: ic}
}

// threePhase implements the balanced ABC case: pure positive sequence.
func threePhase(vpf, z1, zf complex128) phaseResult {
	ia := vpf / (z1 + zf)
	ib := alpha * alpha * ia
	ic := alpha * ia

	va := ia * zf
	vb := alpha * alpha * va
	vc := alpha * va

	return phaseResult{Va: va, Vb: vb, Vc: vc, Ia: ia, Ib: ib, Ic: ic}
}
