package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"cryobank/agent/approval"
	"cryobank/agent/llm"
	"cryobank/agent/prompt"
	"cryobank/agent/react"
	"cryobank/agent/tool"
	"cryobank/audit"
	"cryobank/contract"
	"cryobank/inventory"
	"cryobank/ops"
	configx "cryobank/pkg/config"
	logx "cryobank/pkg/logger"
	_ "cryobank/pkg/logger/autoload"
	openrouterx "cryobank/pkg/openrouter"
	"cryobank/plan"
	"cryobank/store"
)

type AppConfig struct {
	Store store.Config `envconfig:"STORE"`

	BoxCount int `envconfig:"BOX_COUNT" split_words:"true" default:"5"`
	BoxRows  int `envconfig:"BOX_ROWS" split_words:"true" default:"9"`
	BoxCols  int `envconfig:"BOX_COLS" split_words:"true" default:"9"`

	AgentMaxSteps   int           `envconfig:"AGENT_MAX_STEPS" split_words:"true" default:"10"`
	AgentWorkers    int           `envconfig:"AGENT_WORKERS" split_words:"true" default:"4"`
	ApprovalTimeout time.Duration `envconfig:"APPROVAL_TIMEOUT" split_words:"true" default:"300s"`
	StageWrites     bool          `envconfig:"STAGE_WRITES" split_words:"true" default:"true"`

	// Optional Postgres DSN; when set, audit events are archived there in
	// addition to the JSONL log.
	AuditArchiveDSN string `envconfig:"AUDIT_ARCHIVE_DSN" split_words:"true"`
}

func main() {
	appCfg := configx.MustNew[AppConfig]("CRYOBANK")
	openRouterCfg := configx.MustNew[openrouterx.Config]("OPENROUTER")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st := store.New(appCfg.Store, logx.Component("store"))
	if err := st.Initialize(inventory.Meta{
		BoxCount: appCfg.BoxCount,
		Layout:   inventory.BoxLayout{Rows: appCfg.BoxRows, Cols: appCfg.BoxCols},
	}); err != nil {
		log.Fatal().Err(err).Msg("could not initialize inventory document")
	}
	if dsn := strings.TrimSpace(appCfg.AuditArchiveDSN); dsn != "" {
		archive, err := audit.NewArchive(ctx, dsn)
		if err != nil {
			log.Fatal().Err(err).Msg("could not connect audit archive")
		}
		defer archive.Close()
		st.WithArchive(archive)
		log.Info().Msg("audit archive attached")
	}

	service := ops.New(st, logx.Component("ops"))

	var plans *plan.Store
	if appCfg.StageWrites {
		plans = plan.NewStore(func(items []plan.Item) {
			log.Info().Int("staged", len(items)).Msg("plan queue changed")
		})
	}
	executor := plan.NewExecutor(plans, service, logx.Component("plan"))

	broker := approval.NewBroker(appCfg.ApprovalTimeout, func(req approval.Request) {
		fmt.Printf("\n[%s] %s\n> ", req.Kind, req.Prompt)
	})

	dispatcher := tool.NewDispatcher(service, plans, broker, logx.Component("dispatcher"))

	client, err := llm.NewFromOpenRouter(*openRouterCfg)
	if err != nil {
		log.Fatal().Err(err).Msg("could not build reasoning client")
	}
	agent := react.New(client, dispatcher, prompt.System(), logx.Component("react"),
		react.WithMaxSteps(appCfg.AgentMaxSteps),
		react.WithWorkers(appCfg.AgentWorkers),
	)

	runREPL(ctx, agent, service, plans, executor, broker)
}

// routeLines reads stdin line by line on its own goroutine. A pending
// question or confirmation consumes the line directly, so the agent can be
// answered while a run is still in flight; everything else goes to the chat
// loop. Closes out when the reader drains.
func routeLines(r io.Reader, broker *approval.Broker, out chan<- string) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if req, ok := broker.Pending(); ok {
			approved := strings.EqualFold(line, "y") || strings.EqualFold(line, "yes")
			if err := broker.Answer(req.ID, approval.Answer{Text: line, Approved: approved}); err != nil {
				fmt.Println("answer:", err)
			}
			continue
		}
		out <- line
	}
	close(out)
}

// runREPL is a minimal terminal surface: chat turns go through the
// reasoning loop; /-commands manage the staged plan and pending approvals.
func runREPL(ctx context.Context, agent *react.Agent, service *ops.Service, plans *plan.Store, executor *plan.Executor, broker *approval.Broker) {
	actor := contract.NewActorContext("human", "cli", "", "")
	var history []llm.Message

	lines := make(chan string)
	go routeLines(os.Stdin, broker, lines)

	fmt.Println("cryobank ready. /plan lists staged changes, /approve applies them, /discard drops them, /export <path> writes a CSV snapshot, /quit exits.")
	for {
		fmt.Print("> ")
		var line string
		select {
		case <-ctx.Done():
			return
		case l, ok := <-lines:
			if !ok {
				return
			}
			line = l
		}

		switch {
		case line == "/quit":
			return
		case line == "/plan":
			printPlan(plans)
			continue
		case line == "/approve":
			if plans == nil {
				fmt.Println("staging is disabled")
				continue
			}
			for _, r := range executor.Approve(ctx, actor, nil) {
				status := "applied"
				if !r.Result.OK {
					status = fmt.Sprintf("failed (%s: %s)", r.Result.ErrorCode, r.Result.Message)
				}
				fmt.Printf("  %s: %s\n", r.Item.Describe(), status)
			}
			continue
		case line == "/discard":
			if plans == nil {
				fmt.Println("staging is disabled")
				continue
			}
			fmt.Printf("discarded %d staged change(s)\n", executor.Discard(nil))
			continue
		case strings.HasPrefix(line, "/export"):
			path := strings.TrimSpace(strings.TrimPrefix(line, "/export"))
			res := service.ExportCSV(path)
			if !res.OK {
				fmt.Printf("export failed (%s): %s\n", res.ErrorCode, res.Message)
				continue
			}
			fmt.Printf("exported %v record(s) to %v\n", res.Result["count"], res.Result["path"])
			continue
		}

		turnActor := actor
		turnActor.TraceID = contract.NewTraceID()
		result := agent.Run(ctx, turnActor, line, history, func(ev react.Event) {
			if ev.Kind == react.EventTextDelta {
				fmt.Print(ev.Text)
			}
		})
		fmt.Println()
		if !result.OK {
			fmt.Printf("(run ended: %s) %s\n", result.ErrorCode, result.Answer)
			continue
		}
		if result.Staged > 0 {
			fmt.Printf("(%d change(s) staged; /plan to review, /approve to apply)\n", result.Staged)
		}
		history = append(history,
			llm.Message{Role: llm.RoleUser, Content: line},
			llm.Message{Role: llm.RoleAssistant, Content: result.Answer},
		)
	}
}

func printPlan(plans *plan.Store) {
	if plans == nil {
		fmt.Println("staging is disabled")
		return
	}
	items := plans.List()
	if len(items) == 0 {
		fmt.Println("nothing staged")
		return
	}
	for i, item := range items {
		fmt.Printf("  [%d] %s\n", i, item.Describe())
	}
}
