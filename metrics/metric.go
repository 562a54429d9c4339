package metrics

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bnb-chain/da-orchestrator/logging"
)

var (
	LatestIngestedBlockGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "latest_ingested_block",
		Help: "Highest L2 block number that has been seeded into the tracker store.",
	})

	BlockStatusGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "block_records_by_status",
		Help: "Number of tracked block records per status.",
	}, []string{"status"})

	SubmittedCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "da_submissions_total",
		Help: "Blob submissions accepted by the DA layer.",
	})

	FinalizedCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "da_finalized_total",
		Help: "DA transactions observed as finalized.",
	})

	SubmissionTimeoutCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "submission_timeouts_total",
		Help: "Blocks that exhausted the submission attempt budget.",
	})

	VerificationTimeoutCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "verification_timeouts_total",
		Help: "Blocks that exhausted the verification poll budget.",
	})

	DeadLetterCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "dead_lettered_tasks_total",
		Help: "Tasks dropped because their record violated an invariant.",
	})

	MetricsItems = []prometheus.Collector{
		LatestIngestedBlockGauge,
		BlockStatusGauge,
		SubmittedCounter,
		FinalizedCounter,
		SubmissionTimeoutCounter,
		VerificationTimeoutCounter,
		DeadLetterCounter,
	}
)

const DefaultMetricsAddress = "0.0.0.0:9090"

type Metrics struct {
	httpAddress string
	registry    *prometheus.Registry
	httpServer  *http.Server
}

func NewMetrics(address string) *Metrics {
	if address == "" {
		address = DefaultMetricsAddress
	}
	return &Metrics{
		httpAddress: address,
		registry:    prometheus.NewRegistry(),
	}
}

func (m *Metrics) Start() {
	m.registry.MustRegister(MetricsItems...)
	go m.serve()
}

func (m *Metrics) serve() {
	router := mux.NewRouter()
	router.Path("/metrics").Handler(promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
	m.httpServer = &http.Server{
		Addr:    m.httpAddress,
		Handler: router,
	}
	if err := m.httpServer.ListenAndServe(); err != nil {
		logging.Logger.Errorf("failed to listen and serve, err=%s", err.Error())
		panic(err)
	}
}
