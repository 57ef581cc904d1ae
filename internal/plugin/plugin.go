// Package plugin connects the hooked host to the recognizer. A Plugin owns
// every long-lived object and is driven by the hook handlers and event sinks
// on the host thread.
package plugin

import (
	"context"
	"fmt"
	"io"

	"github.com/retroenv/retrohook/internal/bridge"
	"github.com/retroenv/retrohook/internal/config"
	"github.com/retroenv/retrohook/internal/detector"
	"github.com/retroenv/retrohook/internal/events"
	"github.com/retroenv/retrohook/internal/favorites"
	"github.com/retroenv/retrohook/internal/hook"
	"github.com/retroenv/retrohook/internal/hooktable"
	"github.com/retroenv/retrohook/internal/session"
	"github.com/retroenv/retrogolib/log"
)

// Handler names referenced by the hook table.
const (
	HandlerInvoke   = "invoke"
	HandlerFrame    = "frame"
	HandlerPostLoad = "post_load"
)

// Menu commands passed as first argument of an invoke.
const (
	methodPopulateDialogueList = "PopulateDialogueList"
	methodUpdatePlayerInfo     = "UpdatePlayerInfo"
)

// Host is the hooked process as seen by the plugin.
type Host interface {
	events.Source
	favorites.Source
	favorites.Equipper

	// RunCommand executes a console command.
	RunCommand(command string) error
	// Version returns the packed version of the host executable.
	Version() uint64
	// Locator returns the module base and the anchor addresses of the host.
	Locator() hook.Locator
}

// Plugin is the voice control plugin.
type Plugin struct {
	logger *log.Logger
	cfg    config.Config
	host   Host

	bridge    *bridge.Bridge
	session   *session.Session
	favorites *favorites.Manager
	registry  *events.Registry

	buildID    string
	build      hooktable.Build
	subscribed bool
	pending    []string
	done       chan struct{}
}

// New returns a plugin that talks to the recognizer over conn.
func New(logger *log.Logger, cfg config.Config, host Host, conn io.ReadWriteCloser) *Plugin {
	b := bridge.New(logger, conn, bridge.NewQueue[string](), bridge.NewQueue[string](),
		bridge.WithOutboundBuffer(cfg.Bridge.OutboundBuffer))

	return &Plugin{
		logger:    logger,
		cfg:       cfg,
		host:      host,
		bridge:    b,
		session:   session.New(logger, b),
		favorites: favorites.New(logger, host, host, b, b, cfg.Favorites.Enabled),
		registry:  events.NewRegistry(logger, host),
		done:      make(chan struct{}),
	}
}

// Start runs the recognizer connection until ctx is canceled or the
// recognizer disconnects.
func (p *Plugin) Start(ctx context.Context) {
	go func() {
		defer close(p.done)
		if err := p.bridge.Run(ctx); err != nil {
			p.logger.Warn("Recognizer connection failed", log.Err(err))
		}
	}()
}

// Done is closed when the recognizer connection started by Start ended.
func (p *Plugin) Done() <-chan struct{} {
	return p.done
}

// Session returns the dialogue session.
func (p *Plugin) Session() *session.Session {
	return p.session
}

// Install detects the host build and installs its hook sites with the given
// native handler addresses.
func (p *Plugin) Install(engine *hook.Engine, table *hooktable.Table, handlers map[string]uintptr) ([]hook.Report, error) {
	id, build, err := detector.Detect(table, p.cfg.Hooks.Build, p.host.Version())
	if err != nil {
		return nil, fmt.Errorf("detecting host build: %w", err)
	}
	p.buildID = id
	p.build = build

	p.logger.Info("Installing hooks",
		log.String("build", id),
		log.Int("sites", len(build.Sites)))

	reports, err := engine.InstallAll(build, p.host.Locator(), handlers)
	if err != nil {
		return reports, fmt.Errorf("installing hooks: %w", err)
	}
	return reports, nil
}

// Build returns the identifier of the installed host build.
func (p *Plugin) Build() string {
	return p.buildID
}

// OnInvoke handles an invoke of a menu action. The first argument is the
// name of the menu command.
func (p *Plugin) OnInvoke(surface session.Surface, args []string) {
	defer p.recoverHandler(HandlerInvoke)

	p.subscribe()
	if len(args) == 0 {
		return
	}

	switch args[0] {
	case methodPopulateDialogueList:
		if !p.cfg.Dialogue.Enabled {
			return
		}
		p.session.Populate(surface, dialogueLines(args))

	case methodUpdatePlayerInfo:
		p.refreshFavorites()
	}
}

// dialogueLines returns the topic texts of a populate invoke. Every topic
// occupies three arguments, the last argument is not part of a topic.
func dialogueLines(args []string) []string {
	var lines []string
	for i := 1; i < len(args)-1; i += 3 {
		lines = append(lines, args[i])
	}
	return lines
}

// OnFrame runs the per frame processing.
func (p *Plugin) OnFrame() {
	defer p.recoverHandler(HandlerFrame)

	p.drainCommands()
	p.session.Tick()
	if p.session.Active() {
		return
	}

	if len(p.pending) > 0 {
		command := p.pending[0]
		p.pending = p.pending[1:]
		p.runCommand(command)
	}
	p.favorites.ProcessEquipActions()
}

// drainCommands applies pending selections. Console commands are kept until
// no menu is open.
func (p *Plugin) drainCommands() {
	for {
		line, ok := p.bridge.PopCommand()
		if !ok {
			return
		}
		if selection, ok := bridge.ParseSelection(line); ok {
			p.session.Select(selection)
			continue
		}
		if command, ok := bridge.ParseCommand(line); ok {
			p.pending = append(p.pending, command)
			continue
		}
		p.logger.Debug("Dropping malformed command", log.String("line", line))
	}
}

func (p *Plugin) runCommand(command string) {
	if err := p.host.RunCommand(command); err != nil {
		p.logger.Warn("Running console command failed",
			log.String("command", command),
			log.Err(err))
		return
	}
	p.logger.Info("Console command executed", log.String("command", command))
}

// OnObjectLoaded handles the player character being loaded or unloaded.
func (p *Plugin) OnObjectLoaded(event events.Event) {
	defer p.recoverHandler("object_loaded")

	if event.Loaded {
		p.refreshFavorites()
		p.logger.Info("Favorites voice equip initialized")
		return
	}
	if err := p.favorites.Clear(); err != nil {
		p.logger.Warn("Clearing favorites failed", log.Err(err))
	}
	p.session.Reset()
	p.logger.Info("Favorites voice equip disabled")
}

// OnPostLoad handles a finished game load.
func (p *Plugin) OnPostLoad() {
	defer p.recoverHandler(HandlerPostLoad)
	p.refreshFavorites()
}

func (p *Plugin) refreshFavorites() {
	if err := p.favorites.Refresh(); err != nil {
		p.logger.Warn("Refreshing favorites failed", log.Err(err))
	}
}

// subscribe registers the event sinks on the first invoke, once the host
// finished creating its event dispatchers.
func (p *Plugin) subscribe() {
	if p.subscribed || !p.build.Events {
		return
	}
	p.subscribed = true

	subscriptions := []struct {
		category events.Category
		handler  events.Handler
	}{
		{events.InputPoll, func(events.Event) { p.OnFrame() }},
		{events.ObjectLoaded, events.PlayerOnly(p.OnObjectLoaded)},
		{events.PostLoad, func(events.Event) { p.OnPostLoad() }},
	}
	for _, s := range subscriptions {
		if err := p.registry.Subscribe(s.category, s.handler); err != nil {
			p.logger.Warn("Subscribing to host events failed", log.Err(err))
		}
	}
}

// recoverHandler must be deferred by every entry point called by the host.
func (p *Plugin) recoverHandler(name string) {
	if err := recover(); err != nil {
		p.logger.Warn("Handler failed",
			log.String("handler", name),
			log.String("panic", fmt.Sprint(err)))
	}
}
