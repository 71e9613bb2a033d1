// Command execution for CLI commands.
//
// Information Hiding:
// - Registry, storage and logger setup hidden
// - Interrupt handling that cancels only the running turn
// - Recording of chunk streams
// - Output formatting hidden

package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"os"
	"os/signal"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/richinex/chatkit/chunk"
	"github.com/richinex/chatkit/config"
	"github.com/richinex/chatkit/llm"
	"github.com/richinex/chatkit/logging"
	"github.com/richinex/chatkit/mcp"
	"github.com/richinex/chatkit/model"
	"github.com/richinex/chatkit/storage"
	"github.com/richinex/chatkit/thread"
)

// Options holds CLI execution options.
type Options struct {
	Model        string
	DBPath       string
	MCPFile      string
	ShowThinking bool
	Verbose      bool
}

// Runtime is everything a command needs: settings, registry, storage and turns.
type Runtime struct {
	Settings config.Settings
	Logger   *zap.Logger
	Manager  *llm.ModelManager
	Store    storage.ThreadStorage
	Service  *thread.Service
	Servers  []model.MCPServer
	Options  Options

	closeStore func() error
}

// Setup loads settings from the environment and builds the runtime.
// Flags in opts override the environment.
func Setup(opts Options) (*Runtime, error) {
	settings, err := config.New()
	if err != nil {
		return nil, err
	}

	level := settings.Log.Level
	if opts.Verbose {
		level = "debug"
	}
	logger, err := logging.New(level, settings.Log.Format)
	if err != nil {
		return nil, err
	}

	catalog, err := settings.Catalog()
	if err != nil {
		return nil, err
	}
	configs, err := settings.ProcessorConfigs(catalog, logger)
	if err != nil {
		return nil, err
	}

	manager := llm.NewModelManager(logger)
	names, err := llm.BuildRegistry(manager, configs, logger)
	if err != nil {
		return nil, err
	}
	logger.Debug("Processors registered", zap.Strings("names", names))

	wanted := opts.Model
	if wanted == "" {
		wanted = settings.LLM.DefaultModel
	}
	if wanted != "" {
		id, err := manager.ResolveModel(wanted)
		if err != nil {
			return nil, err
		}
		manager.SetDefaultModel(id)
		opts.Model = id
	}

	rt := &Runtime{
		Settings: settings,
		Logger:   logger,
		Manager:  manager,
		Options:  opts,
	}

	mcpFile := opts.MCPFile
	if mcpFile == "" {
		mcpFile = settings.LLM.MCPFile
	}
	if mcpFile != "" {
		if rt.Servers, err = mcp.LoadServers(mcpFile); err != nil {
			return nil, err
		}
	}

	dbPath := opts.DBPath
	if dbPath == "" {
		dbPath = settings.Storage.DBPath
	}
	if dbPath == ":memory:" {
		rt.Store = storage.NewInMemoryStorage()
		rt.closeStore = func() error { return nil }
	} else {
		db, err := storage.OpenSqlite(dbPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		rt.Store = db
		rt.closeStore = db.Close
	}

	rt.Service = thread.NewService(manager, rt.Store, logger)
	return rt, nil
}

// Close releases storage and flushes the logger.
func (rt *Runtime) Close() error {
	_ = rt.Logger.Sync()
	if rt.closeStore != nil {
		return rt.closeStore()
	}
	return nil
}

// AskRequest is a single turn from the command line.
type AskRequest struct {
	Prompt     string
	ThreadID   string
	Files      []string
	RecordPath string
}

// Ask runs one turn and prints it.
func Ask(ctx context.Context, rt *Runtime, req AskRequest, out io.Writer) error {
	if req.RecordPath != "" {
		stop, err := recordTurns(rt, req.RecordPath)
		if err != nil {
			return err
		}
		defer func() {
			if err := stop(); err != nil {
				rt.Logger.Warn("Failed to finish recording", zap.Error(err))
			}
		}()
	}

	threadID := req.ThreadID
	if threadID == "" {
		th, err := newThread(ctx, rt)
		if err != nil {
			return err
		}
		threadID = th.ThreadID
	}

	_, err := runTurn(ctx, rt, thread.TurnRequest{
		ThreadID: threadID,
		Prompt:   req.Prompt,
		Files:    req.Files,
	}, out)
	return err
}

// Chat starts an interactive chat session.
func Chat(ctx context.Context, rt *Runtime, threadID string, in io.Reader, out io.Writer) error {
	if threadID != "" {
		th, err := rt.Store.Load(ctx, threadID)
		if err != nil {
			return fmt.Errorf("failed to load thread: %w", err)
		}
		if len(th.Messages) > 0 {
			fmt.Fprintf(out, "Resuming thread '%s' (%d messages)\n", th.Title, len(th.Messages))
		}
		if th.AIModel != "" {
			rt.Options.Model = th.AIModel
		}
	}

	fmt.Fprintf(out, "%s %s\n", titleStyle.Render("chatkit"), mutedStyle.Render("model "+currentModel(rt)))
	fmt.Fprintln(out, mutedStyle.Render("Commands: /models, /model <id>, /new, /resend, /threads, /quit. Ctrl-C stops a reply."))
	fmt.Fprintln(out)

	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			break
		}

		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}

		if strings.HasPrefix(input, "/") {
			quit, err := chatCommand(ctx, rt, input, &threadID, out)
			if err != nil {
				fmt.Fprintln(out, errorStyle.Render("Error: "+err.Error()))
			}
			if quit {
				break
			}
			continue
		}

		if threadID == "" {
			th, err := newThread(ctx, rt)
			if err != nil {
				return err
			}
			threadID = th.ThreadID
		}

		_, err := runTurn(ctx, rt, thread.TurnRequest{
			ThreadID: threadID,
			Prompt:   input,
			ModelID:  rt.Options.Model,
		}, out)
		if err != nil {
			// Already shown by the renderer and recorded in the thread.
			rt.Logger.Debug("Turn failed", zap.Error(err))
		}
		fmt.Fprintln(out)
	}

	return scanner.Err()
}

// chatCommand handles a slash command and reports whether to quit.
func chatCommand(ctx context.Context, rt *Runtime, input string, threadID *string, out io.Writer) (bool, error) {
	cmd, arg, _ := strings.Cut(input, " ")
	arg = strings.TrimSpace(arg)

	switch cmd {
	case "/quit", "/exit":
		return true, nil

	case "/models":
		fmt.Fprint(out, RenderModels(rt.Manager.AllModels(), currentModel(rt)))

	case "/model":
		if arg == "" {
			fmt.Fprintln(out, "Current model: "+currentModel(rt))
			return false, nil
		}
		id, err := rt.Manager.ResolveModel(arg)
		if err != nil {
			return false, err
		}
		rt.Options.Model = id
		fmt.Fprintln(out, successStyle.Render("Model set to "+id))

	case "/new":
		*threadID = ""
		fmt.Fprintln(out, mutedStyle.Render("Started a new thread."))

	case "/resend":
		if *threadID == "" {
			return false, thread.ErrNothingToResend
		}
		if _, err := runTurn(ctx, rt, thread.TurnRequest{
			ThreadID: *threadID,
			ModelID:  rt.Options.Model,
			Resend:   true,
		}, out); err != nil {
			rt.Logger.Debug("Resend failed", zap.Error(err))
		}

	case "/threads":
		return false, ListThreads(ctx, rt, out)

	default:
		return false, fmt.Errorf("unknown command %s", cmd)
	}
	return false, nil
}

// runTurn runs one turn with live rendering. Ctrl-C while the turn streams
// cancels the turn only.
func runTurn(ctx context.Context, rt *Runtime, req thread.TurnRequest, out io.Writer) (*thread.TurnResult, error) {
	renderer := NewRenderer(out, rt.Options.ShowThinking)
	req.Observer = renderer.Observe
	if len(req.MCPServers) == 0 {
		req.MCPServers = rt.Servers
	}

	stop := cancelOnInterrupt(rt.Service, req.ThreadID)
	res, err := rt.Service.Run(ctx, req)
	stop()

	if res != nil {
		renderer.Finish(res.Accumulator, res.Cancelled)
	}
	if err != nil && (res == nil || !streamedError(res)) {
		fmt.Fprintln(out, errorStyle.Render("Error: "+err.Error()))
	}
	return res, err
}

// streamedError reports whether the error already reached the renderer as an ERROR chunk.
func streamedError(res *thread.TurnResult) bool {
	return res.Accumulator != nil && res.Accumulator.LastError() != ""
}

// cancelOnInterrupt trips the thread's turn token on SIGINT until stop is called.
func cancelOnInterrupt(svc *thread.Service, threadID string) (stop func()) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt)
	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-sigs:
				svc.Cancel(threadID)
			case <-done:
				return
			}
		}
	}()
	return func() {
		signal.Stop(sigs)
		close(done)
	}
}

// newThread stores an empty thread so an interrupt can address it by id.
func newThread(ctx context.Context, rt *Runtime) (*model.Thread, error) {
	th := model.NewThread(currentModel(rt))
	if err := rt.Store.Save(ctx, th); err != nil {
		return nil, fmt.Errorf("failed to create thread: %w", err)
	}
	return th, nil
}

func currentModel(rt *Runtime) string {
	if rt.Options.Model != "" {
		return rt.Options.Model
	}
	return rt.Manager.DefaultModel()
}

// ListModels prints every registered model, default marked.
func ListModels(rt *Runtime, out io.Writer) {
	models := rt.Manager.AllModels()
	if len(models) == 0 {
		fmt.Fprintln(out, mutedStyle.Render("No models registered. Set an API key such as OPENAI_API_KEY."))
		return
	}
	fmt.Fprint(out, RenderModels(models, rt.Manager.DefaultModel()))
}

// ListThreads prints stored threads.
func ListThreads(ctx context.Context, rt *Runtime, out io.Writer) error {
	threads, err := rt.Store.List(ctx)
	if err != nil {
		return err
	}
	fmt.Fprint(out, RenderThreads(threads))
	return nil
}

// Replay renders a chunk recording through a turn, as if a processor streamed it.
func Replay(ctx context.Context, path string, delay time.Duration, showThinking bool, logger *zap.Logger, out io.Writer) error {
	if logger == nil {
		logger = logging.Nop()
	}
	p, err := llm.LoadReplayProcessor(path, "replay", delay, logger)
	if err != nil {
		return err
	}
	manager := llm.NewModelManager(logger)
	manager.RegisterProcessor(p.Name(), p)

	rt := &Runtime{
		Logger:  logger,
		Manager: manager,
		Store:   storage.NewInMemoryStorage(),
		Options: Options{ShowThinking: showThinking},
	}
	rt.Service = thread.NewService(manager, rt.Store, logger)

	th, err := newThread(ctx, rt)
	if err != nil {
		return err
	}
	_, err = runTurn(ctx, rt, thread.TurnRequest{ThreadID: th.ThreadID, Prompt: "replay " + path}, out)
	return err
}

// ProbeServers connects to each configured MCP server and lists its tools.
func ProbeServers(ctx context.Context, rt *Runtime, out io.Writer) error {
	if len(rt.Servers) == 0 {
		fmt.Fprintln(out, mutedStyle.Render("No MCP servers configured. Set CHATKIT_MCP_FILE or pass --mcp-config."))
		return nil
	}

	failed := 0
	for _, r := range mcp.Probe(ctx, rt.Servers, nil) {
		name := titleStyle.Render(r.Server.Name)
		switch {
		case r.NeedsAuth():
			fmt.Fprintf(out, "%s %s\n", name, warningStyle.Render("needs authentication"))
		case r.Err != nil:
			failed++
			fmt.Fprintf(out, "%s %s\n", name, errorStyle.Render(r.Err.Error()))
		default:
			fmt.Fprintf(out, "%s %s\n", name, successStyle.Render(fmt.Sprintf("%d tools", len(r.Tools))))
			for _, tool := range r.Tools {
				fmt.Fprintf(out, "  %-28s %s\n", tool.Name, mutedStyle.Render(truncateString(tool.Description, 80)))
			}
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d servers failed", failed, len(rt.Servers))
	}
	return nil
}

// recordingProcessor tees every stream of the wrapped processor into a recorder.
type recordingProcessor struct {
	llm.Processor
	rec *llm.Recorder
}

func (p recordingProcessor) Process(ctx context.Context, req llm.Request) (iter.Seq2[chunk.Chunk, error], error) {
	seq, err := p.Processor.Process(ctx, req)
	if err != nil {
		return nil, err
	}
	return llm.Record(seq, p.rec), nil
}

// recordTurns wraps every registered processor so turns are written to path.
func recordTurns(rt *Runtime, path string) (stop func() error, err error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create recording: %w", err)
	}
	rec := llm.NewRecorder(f)
	for _, name := range rt.Manager.ProcessorNames() {
		p, ok := rt.Manager.Processor(name)
		if !ok {
			continue
		}
		rt.Manager.RegisterProcessor(name, recordingProcessor{Processor: p, rec: rec})
	}
	return func() error {
		return errors.Join(rec.Flush(), f.Close())
	}, nil
}
