// Package metrics expone contadores Prometheus de negocio.
// Las métricas HTTP genéricas viven en internal/http.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	mintTotal           *prometheus.CounterVec
	ticketExchangeTotal *prometheus.CounterVec
	ticketCreatedTotal  prometheus.Counter
	jwksRequestsTotal   prometheus.Counter
)

// Register inicializa y registra las métricas de negocio. Idempotente;
// ignora registros duplicados para convivir con tests.
func Register(reg prometheus.Registerer) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	registerOnce.Do(func() {
		mintTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "token_mint_total",
			Help: "Emisiones de token interno por resultado",
		}, []string{"result"}) // result: ok|rejected|error

		ticketExchangeTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "download_ticket_exchange_total",
			Help: "Intercambios de download ticket por resultado",
		}, []string{"result"}) // result: ok|not_found

		ticketCreatedTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "download_ticket_created_total",
			Help: "Download tickets creados",
		})

		jwksRequestsTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "jwks_requests_total",
			Help: "Requests al endpoint de publicación de claves",
		})

		for _, c := range []prometheus.Collector{
			mintTotal, ticketExchangeTotal, ticketCreatedTotal, jwksRequestsTotal,
		} {
			if err := reg.Register(c); err != nil {
				if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
					return
				}
			}
		}
	})
}

// RecordMint registra el resultado de una emisión.
func RecordMint(result string) {
	if mintTotal != nil {
		mintTotal.WithLabelValues(result).Inc()
	}
}

// RecordTicketExchange registra el resultado de un intercambio de ticket.
func RecordTicketExchange(result string) {
	if ticketExchangeTotal != nil {
		ticketExchangeTotal.WithLabelValues(result).Inc()
	}
}

// RecordTicketCreated registra la creación de un ticket.
func RecordTicketCreated() {
	if ticketCreatedTotal != nil {
		ticketCreatedTotal.Inc()
	}
}

// RecordJWKSRequest registra un request de publicación de claves.
func RecordJWKSRequest() {
	if jwksRequestsTotal != nil {
		jwksRequestsTotal.Inc()
	}
}
