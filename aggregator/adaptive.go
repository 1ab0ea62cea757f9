package aggregator

import (
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/fedopt-io/fedopt/tensor"
)

// adaptive feeds the weighted-mean delta into a server-side adaptive
// optimizer as a pseudo-gradient. The moment recurrences are the standard
// Adam ones, with the Yogi second-moment rule as a configurable variant:
//
//	m_t = b1*m_{t-1} + (1-b1)*g
//	v_t = b2*v_{t-1} + (1-b2)*g^2              (Adam)
//	v_t = v_{t-1} - (1-b2)*g^2*sign(v_{t-1}-g^2) (Yogi)
//	w_t = w_{t-1} + lr * m_hat / (sqrt(v_hat) + eps)
//
// Bias correction of m_hat/v_hat is optional; with it off, m_hat = m_t and
// v_hat = v_t.
type adaptive struct {
	cfg Config
}

func (a *adaptive) Aggregate(current tensor.Weights, outputs []Output, state State) (tensor.Weights, State, error) {
	if err := state.Validate(StrategyAdaptive, current); err != nil {
		return tensor.Weights{}, State{}, err
	}

	grad, err := weightedMeanDelta(current, outputs)
	if err != nil {
		return tensor.Weights{}, State{}, err
	}
	if err := checkDeltaShape(grad, current); err != nil {
		return tensor.Weights{}, State{}, err
	}

	next := State{
		Strategy:     StrategyAdaptive,
		FirstMoment:  state.FirstMoment.Clone(),
		SecondMoment: state.SecondMoment.Clone(),
		Step:         state.Step + 1,
	}

	update := current.ZeroDelta()
	for _, name := range current.Names() {
		g := grad[name].Data
		m := next.FirstMoment[name].Data
		v := next.SecondMoment[name].Data
		u := update[name].Data

		floats.Scale(a.cfg.Beta1, m)
		floats.AddScaled(m, 1-a.cfg.Beta1, g)

		if a.cfg.Yogi {
			for i := range v {
				g2 := g[i] * g[i]
				v[i] -= (1 - a.cfg.Beta2) * g2 * sign(v[i]-g2)
			}
		} else {
			floats.Scale(a.cfg.Beta2, v)
			for i := range v {
				v[i] += (1 - a.cfg.Beta2) * g[i] * g[i]
			}
		}

		mScale := 1.0
		vScale := 1.0
		if a.cfg.BiasCorrection {
			mScale = 1 / (1 - math.Pow(a.cfg.Beta1, float64(next.Step)))
			vScale = 1 / (1 - math.Pow(a.cfg.Beta2, float64(next.Step)))
		}

		for i := range u {
			u[i] = a.cfg.ServerLearningRate * m[i] * mScale / (math.Sqrt(v[i]*vScale) + a.cfg.Epsilon)
		}
	}

	weights, err := current.ApplyDelta(update)
	if err != nil {
		return tensor.Weights{}, State{}, err
	}

	return weights, next, nil
}

func sign(x float64) float64 {
	switch {
	case x > 0:
		return 1
	case x < 0:
		return -1
	default:
		return 0
	}
}
