package dmthedev

import (
	stderrors "errors"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// Derivation result labels for dmthedev_key_derivations_total.
const (
	derivationOK       = "ok"
	derivationRejected = "rejected"
	derivationFailed   = "failed"
)

// metrics counts messenger activity. Counters are always usable; they are
// only exported when a registerer is supplied.
type metrics struct {
	encrypted   prometheus.Counter
	decrypted   *prometheus.CounterVec
	derivations *prometheus.CounterVec
}

func newMetrics(reg prometheus.Registerer, logger *zap.Logger) *metrics {
	m := &metrics{
		encrypted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "dmthedev",
			Name:      "messages_encrypted_total",
			Help:      "Total number of messages sealed for a recipient",
		}),
		decrypted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "dmthedev",
				Name:      "messages_decrypted_total",
				Help:      "Total number of stored messages opened, by outcome",
			},
			[]string{"status"},
		),
		derivations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "dmthedev",
				Name:      "key_derivations_total",
				Help:      "Total number of signature-derived key derivations, by result",
			},
			[]string{"result"},
		),
	}
	if reg == nil {
		return m
	}
	m.encrypted = register(reg, m.encrypted, logger)
	m.decrypted = register(reg, m.decrypted, logger)
	m.derivations = register(reg, m.derivations, logger)
	return m
}

// register registers c, returning the already registered collector if a
// second Messenger shares the registerer. A collector that cannot be
// registered keeps counting but is not exported, and the failure is logged.
func register[C prometheus.Collector](reg prometheus.Registerer, c C, logger *zap.Logger) C {
	err := reg.Register(c)
	if err == nil {
		return c
	}
	var are prometheus.AlreadyRegisteredError
	if stderrors.As(err, &are) {
		if existing, ok := are.ExistingCollector.(C); ok {
			return existing
		}
	}
	logger.Warn("metric not exported", zap.Error(err))
	return c
}
