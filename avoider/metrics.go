package avoider

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var avoiderTicks = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "avoider_ticks_total",
	Help: "The number of avoider checks by outcome.",
}, []string{
	"outcome",
})

func instrumentTick(o Outcome) {
	avoiderTicks.
		With(prometheus.Labels{"outcome": o.String()}).
		Inc()
}
