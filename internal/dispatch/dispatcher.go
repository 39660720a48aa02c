package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/bbmesh/bbmesh/internal/mesh"
	"github.com/bbmesh/bbmesh/internal/menu"
	"github.com/bbmesh/bbmesh/internal/nodetrack"
	"github.com/bbmesh/bbmesh/internal/observability"
	"github.com/bbmesh/bbmesh/internal/plugin"
	"github.com/bbmesh/bbmesh/internal/ratelimit"
	"github.com/bbmesh/bbmesh/internal/session"
)

const inboundBuffer = 64

// Options wires a Dispatcher. Tracker and Notifier may be nil when node
// tracking is disabled; Metrics must not be nil.
type Options struct {
	ServerName     string
	WelcomeMessage string
	MOTD           string

	ResponseChannels []int

	Sender   mesh.Sender
	Sessions *session.Store
	Limiter  *ratelimit.Limiter
	Nav      *menu.Navigator
	Runtime  *plugin.Runtime
	Tracker  *nodetrack.Tracker
	Notifier *nodetrack.Notifier
	Metrics  *observability.Metrics
}

// Stats is a point-in-time snapshot of dispatcher counters for the ops API.
type Stats struct {
	StartedAt       time.Time `json:"started_at"`
	Received        int64     `json:"messages_received"`
	Replied         int64     `json:"messages_replied"`
	Ignored         int64     `json:"messages_ignored"`
	DroppedInbound  int64     `json:"dropped_inbound"`
	RateLimited     int64     `json:"rate_limited"`
	SessionsCreated int64     `json:"sessions_created"`
	PluginFaults    int64     `json:"plugin_faults"`
}

// Dispatcher is the single place inbound mesh traffic is interpreted. One
// worker goroutine drains the inbound queue, so messages from the same
// sender are always handled in arrival order and session state never sees
// two writers.
type Dispatcher struct {
	opts Options

	inbound chan mesh.Message

	mu    sync.Mutex
	stats Stats
}

func New(opts Options) *Dispatcher {
	return &Dispatcher{
		opts:    opts,
		inbound: make(chan mesh.Message, inboundBuffer),
	}
}

// HandleMessage is the mesh inbound callback. It never blocks the read
// pump: if the queue is full the message is dropped and counted.
func (d *Dispatcher) HandleMessage(msg mesh.Message) {
	select {
	case d.inbound <- msg:
	default:
		d.mu.Lock()
		d.stats.DroppedInbound++
		d.mu.Unlock()
		log.Printf("dispatch: inbound queue full, dropping message from %s", msg.SenderID)
	}
}

// Run drains the inbound queue until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) {
	d.mu.Lock()
	d.stats.StartedAt = time.Now().UTC()
	d.mu.Unlock()

	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-d.inbound:
			d.process(ctx, msg)
		}
	}
}

// Stats returns a snapshot of the counters.
func (d *Dispatcher) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stats
}

func (d *Dispatcher) count(fn func(*Stats)) {
	d.mu.Lock()
	fn(&d.stats)
	d.mu.Unlock()
}

// process runs the full pipeline for one message. Nothing in here is
// allowed to take the process down: plugin faults, store errors, and
// notification failures all degrade to a logged error and, where a user is
// waiting, an apologetic reply.
func (d *Dispatcher) process(ctx context.Context, msg mesh.Message) {
	d.count(func(s *Stats) { s.Received++ })
	d.opts.Metrics.Messages.WithLabelValues("in", kindLabel(msg.Direct)).Inc()

	identity := strings.TrimSpace(msg.SenderID)
	if identity == "" {
		d.count(func(s *Stats) { s.Ignored++ })
		return
	}

	text := strings.TrimSpace(msg.Text)

	// Admin registration is handled before any session or rate-limit state
	// is touched, so a throttled operator can still register.
	if key, ok := adminCommand(text); ok {
		d.handleAdminRegistration(ctx, msg, identity, key)
		return
	}

	// Broadcast traffic is only answered when it addresses the BBS;
	// everything else on a shared channel is other people's conversation.
	if !msg.Direct && !d.mentioned(text) {
		d.count(func(s *Stats) { s.Ignored++ })
		d.trackPresence(ctx, msg, identity)
		return
	}

	if !d.opts.Limiter.Allow(identity) {
		d.count(func(s *Stats) { s.RateLimited++ })
		d.opts.Metrics.RateLimited.Inc()
		if msg.Direct {
			d.reply(msg, identity, "You're sending messages too quickly. Please wait a moment and try again.")
		}
		return
	}

	sess, created := d.opts.Sessions.GetOrCreate(identity, msg.SenderName, msg.Channel)
	if created {
		d.count(func(s *Stats) { s.SessionsCreated++ })
		d.opts.Metrics.ActiveSessions.Inc()
		d.opts.Metrics.SessionEvents.WithLabelValues("created").Inc()
		log.Printf("dispatch: new session for %s (%s) on channel %d", msg.SenderName, identity, msg.Channel)
	}

	var out string
	if created {
		out = d.greeting(sess.CurrentMenu)
	} else {
		switch sess.State() {
		case session.StatePlugin:
			out = d.resumePlugin(ctx, sess, msg)
		default:
			out = d.navigate(ctx, sess, msg, text)
		}
	}

	d.touch(identity, msg.Channel)
	d.trackPresence(ctx, msg, identity)

	if out != "" {
		d.reply(msg, identity, out)
	}
}

// greeting is the first-contact reply: welcome line, MOTD if configured,
// then the root menu.
func (d *Dispatcher) greeting(rootMenu string) string {
	var b strings.Builder
	b.WriteString(d.opts.WelcomeMessage)
	if d.opts.MOTD != "" {
		b.WriteString("\n")
		b.WriteString(d.opts.MOTD)
	}
	b.WriteString("\n\n")
	b.WriteString(d.opts.Nav.Render(rootMenu))
	return b.String()
}

// resumePlugin routes a message to the session's active plugin. The plugin
// owns the session until it returns Continue false or faults; menu words
// are not interpreted here.
func (d *Dispatcher) resumePlugin(ctx context.Context, sess session.Session, msg mesh.Message) string {
	name := sess.ActivePlugin
	pc := plugin.Context{
		Identity:    sess.Identity,
		DisplayName: sess.DisplayName,
		Channel:     sess.Channel,
		State:       sess.PluginState,
		Message:     msg,
	}

	start := time.Now()
	d.opts.Metrics.PluginInvocations.WithLabelValues(name, "resume").Inc()
	resp, err := d.opts.Runtime.Resume(ctx, name, pc)
	d.opts.Metrics.ObservePluginLatency(time.Since(start))

	if err != nil {
		return d.pluginFault(sess, name, err)
	}
	if resp.Err != "" {
		return d.pluginFault(sess, name, errors.New(resp.Err))
	}

	if resp.Continue {
		d.update(sess, func(s *session.Session) { s.EnterPlugin(name, resp.State) })
		return resp.Text
	}

	d.update(sess, func(s *session.Session) { s.LeavePlugin() })
	return joinBlocks(resp.Text, d.opts.Nav.Render(sess.CurrentMenu))
}

// navigate interprets menu-state input and executes the resolved action.
func (d *Dispatcher) navigate(ctx context.Context, sess session.Session, msg mesh.Message, text string) string {
	action, err := d.opts.Nav.Resolve(sess.CurrentMenu, text)
	if err != nil {
		var navErr *menu.NavigationError
		if errors.As(err, &navErr) {
			return joinBlocks(fmt.Sprintf("No option matches %q.", navErr.Input), navErr.Guidance)
		}
		log.Printf("dispatch: resolve failed for %s: %v", sess.Identity, err)
		return d.opts.Nav.Render(sess.CurrentMenu)
	}

	switch action.Command {
	case menu.CmdBack:
		var current string
		d.update(sess, func(s *session.Session) {
			s.PopMenu()
			current = s.CurrentMenu
		})
		return d.opts.Nav.Render(current)
	case menu.CmdHome:
		root := d.opts.Nav.Tree().Root()
		d.update(sess, func(s *session.Session) { s.GoHome(root) })
		return d.opts.Nav.Render(root)
	case menu.CmdHelp:
		return joinBlocks("Commands: back, home, help. Send an option number or name to choose.",
			d.opts.Nav.Render(sess.CurrentMenu))
	}

	switch action.Kind {
	case menu.ActionShowInfo:
		return action.Message
	case menu.ActionGotoMenu:
		d.update(sess, func(s *session.Session) { s.PushMenu(action.Target) })
		return d.opts.Nav.Render(action.Target)
	case menu.ActionRunPlugin:
		return d.runPlugin(ctx, sess, msg, action.Plugin)
	}

	return d.opts.Nav.Render(sess.CurrentMenu)
}

// runPlugin invokes a menu-selected plugin. Stateless plugins reply and
// leave the session where it is; interactive plugins may take the session
// into the plugin state.
func (d *Dispatcher) runPlugin(ctx context.Context, sess session.Session, msg mesh.Message, name string) string {
	pc := plugin.Context{
		Identity:    sess.Identity,
		DisplayName: sess.DisplayName,
		Channel:     sess.Channel,
		Message:     msg,
	}

	start := time.Now()
	if d.opts.Runtime.IsInteractive(name) {
		d.opts.Metrics.PluginInvocations.WithLabelValues(name, "start").Inc()
		resp, err := d.opts.Runtime.Start(ctx, name, pc)
		d.opts.Metrics.ObservePluginLatency(time.Since(start))
		if err != nil {
			return d.pluginFault(sess, name, err)
		}
		if resp.Err != "" {
			return d.pluginFault(sess, name, errors.New(resp.Err))
		}
		if resp.Continue {
			d.update(sess, func(s *session.Session) { s.EnterPlugin(name, resp.State) })
			return resp.Text
		}
		return joinBlocks(resp.Text, d.opts.Nav.Render(sess.CurrentMenu))
	}

	d.opts.Metrics.PluginInvocations.WithLabelValues(name, "respond").Inc()
	text, err := d.opts.Runtime.Respond(ctx, name, pc)
	d.opts.Metrics.ObservePluginLatency(time.Since(start))
	if err != nil {
		return d.pluginFault(sess, name, err)
	}
	return text
}

// pluginFault converts any plugin failure into the recovery path: clear the
// plugin marker, log, count, and put the user back at their last menu.
func (d *Dispatcher) pluginFault(sess session.Session, name string, err error) string {
	cause := "error"
	if errors.Is(err, plugin.ErrTimeout) {
		cause = "timeout"
	}
	log.Printf("dispatch: plugin %s fault for %s: %v", name, sess.Identity, err)
	d.count(func(s *Stats) { s.PluginFaults++ })
	d.opts.Metrics.PluginFaults.WithLabelValues(name, cause).Inc()

	d.update(sess, func(s *session.Session) { s.LeavePlugin() })
	return joinBlocks("Sorry, that didn't work. Back to the menu.", d.opts.Nav.Render(sess.CurrentMenu))
}

// handleAdminRegistration services "/admin <key>". The reply is identical
// for a wrong key and a disabled feature.
func (d *Dispatcher) handleAdminRegistration(ctx context.Context, msg mesh.Message, identity, key string) {
	if d.opts.Notifier == nil {
		d.reply(msg, identity, "Admin registration is not available.")
		return
	}
	if d.opts.Notifier.RegisterDynamic(ctx, identity, msg.SenderName, key, time.Now().UTC()) {
		d.reply(msg, identity, "Admin registration successful. You will receive new node notifications.")
		return
	}
	d.reply(msg, identity, "Admin registration failed.")
}

// trackPresence upserts node presence and fans out new-node notifications.
// Failures are logged and never affect the user-facing reply.
func (d *Dispatcher) trackPresence(ctx context.Context, msg mesh.Message, identity string) {
	if d.opts.Tracker == nil {
		return
	}
	now := time.Now().UTC()
	isNew, err := d.opts.Tracker.RecordActivity(ctx, identity, msg.SenderName, now)
	if err != nil {
		log.Printf("dispatch: presence tracking failed for %s: %v", identity, err)
		return
	}
	if isNew && d.opts.Notifier != nil {
		sent := d.opts.Notifier.NotifyNewNode(ctx, identity, msg.SenderName, now)
		d.opts.Metrics.AdminNotifies.Add(float64(sent))
	}
}

func (d *Dispatcher) touch(identity string, channel int) {
	err := d.opts.Sessions.Update(identity, channel, func(s *session.Session) {
		s.MessageCount++
	})
	if err != nil && !errors.Is(err, session.ErrNotFound) {
		log.Printf("dispatch: session touch failed for %s: %v", identity, err)
	}
}

// update applies a mutation to the stored session; the session may have
// been evicted between read and write, in which case the mutation is moot.
func (d *Dispatcher) update(sess session.Session, fn func(*session.Session)) {
	err := d.opts.Sessions.Update(sess.Identity, sess.Channel, fn)
	if err != nil && !errors.Is(err, session.ErrNotFound) {
		log.Printf("dispatch: session update failed for %s: %v", sess.Identity, err)
	}
}

// reply queues one outbound message, addressed to the sender on a channel
// the server is allowed to answer on.
func (d *Dispatcher) reply(msg mesh.Message, identity, text string) {
	channel := d.replyChannel(msg.Channel)
	if err := d.opts.Sender.Send(text, channel, identity); err != nil {
		log.Printf("dispatch: send to %s failed: %v", identity, err)
		return
	}
	d.count(func(s *Stats) { s.Replied++ })
	d.opts.Metrics.Messages.WithLabelValues("out", kindLabel(true)).Inc()
}

// replyChannel answers on the inbound channel when permitted, otherwise on
// the first configured response channel.
func (d *Dispatcher) replyChannel(inbound int) int {
	for _, ch := range d.opts.ResponseChannels {
		if ch == inbound {
			return inbound
		}
	}
	if len(d.opts.ResponseChannels) > 0 {
		return d.opts.ResponseChannels[0]
	}
	return inbound
}

// mentioned reports whether broadcast text addresses the BBS by name.
func (d *Dispatcher) mentioned(text string) bool {
	lower := strings.ToLower(text)
	if strings.Contains(lower, "bbs") {
		return true
	}
	name := strings.ToLower(strings.TrimSpace(d.opts.ServerName))
	return name != "" && strings.Contains(lower, name)
}

// adminCommand parses "/admin <key>"; the key may contain spaces.
func adminCommand(text string) (string, bool) {
	const prefix = "/admin "
	if !strings.HasPrefix(strings.ToLower(text), prefix) {
		return "", false
	}
	key := strings.TrimSpace(text[len(prefix):])
	if key == "" {
		return "", false
	}
	return key, true
}

func kindLabel(direct bool) string {
	if direct {
		return "direct"
	}
	return "broadcast"
}

// joinBlocks joins non-empty text blocks with a blank line.
func joinBlocks(blocks ...string) string {
	kept := blocks[:0]
	for _, b := range blocks {
		if strings.TrimSpace(b) != "" {
			kept = append(kept, b)
		}
	}
	return strings.Join(kept, "\n\n")
}
