package app

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"privly_chat/internal/model"
	"privly_chat/internal/service/client"
	"privly_chat/internal/utils/log"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
	"go.uber.org/zap"
)

const defaultSendTimeout = 10 * time.Second

type (
	App struct {
		app     *tview.Application
		peers   *tview.List
		chatbox *tview.TextView
		input   *tview.InputField

		client *client.Client

		// touched only from the tview event loop
		known  map[string]struct{}
		active string
	}
)

func NewApp(c *client.Client) *App {
	return &App{
		app:    tview.NewApplication(),
		client: c,
		known:  make(map[string]struct{}),
	}
}

// Run starts the client and blocks until the UI exits.
func (c *App) Run(ctx context.Context, peer string) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := c.client.Start(ctx); err != nil {
		return err
	}
	defer c.client.Close()

	for p := range c.client.Unread() {
		c.known[p] = struct{}{}
	}

	c.buildUI()
	if peer != "" {
		c.switchTo(peer)
	}
	c.refreshPeers()

	go c.listenOnEvents(ctx)
	go func() {
		<-ctx.Done()
		c.app.Stop()
	}()

	return c.app.SetRoot(c.layout(), true).SetFocus(c.input).Run()
}

func (c *App) buildUI() {
	c.peers = tview.NewList().
		ShowSecondaryText(false)
	c.peers.SetBorder(true).SetTitle(" Peers ")
	c.peers.SetSelectedFunc(func(_ int, _ string, peer string, _ rune) {
		c.switchTo(peer)
		c.refreshPeers()
		c.app.SetFocus(c.input)
	})

	c.chatbox = tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true)
	c.chatbox.SetBorder(true).SetTitle(" No conversation ")

	c.input = tview.NewInputField().
		SetLabel("Message: ").
		SetFieldWidth(0)
	c.input.SetBorder(true).SetTitle(fmt.Sprintf(" %s (%s) ", c.client.Identity(), c.client.Fingerprint()))

	c.input.SetDoneFunc(func(key tcell.Key) {
		if key != tcell.KeyEnter {
			return
		}
		text := c.input.GetText()
		if text == "" {
			return
		}
		c.input.SetText("")
		c.submit(text)
	})

	c.input.SetInputCapture(func(ev *tcell.EventKey) *tcell.EventKey {
		if ev.Key() == tcell.KeyTab {
			c.app.SetFocus(c.peers)
			return nil
		}
		return ev
	})
	c.peers.SetInputCapture(func(ev *tcell.EventKey) *tcell.EventKey {
		if ev.Key() == tcell.KeyTab {
			c.app.SetFocus(c.input)
			return nil
		}
		return ev
	})
}

func (c *App) layout() tview.Primitive {
	right := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(c.chatbox, 0, 1, false).
		AddItem(c.input, 3, 0, true)

	return tview.NewFlex().
		AddItem(c.peers, 24, 0, false).
		AddItem(right, 0, 1, true)
}

func (c *App) submit(text string) {
	cmd := parseInput(text)
	switch cmd.kind {
	case inputSwitch:
		c.switchTo(cmd.arg)
		c.refreshPeers()
		return
	case inputInvalid:
		c.notice("[red]%s[-]", cmd.arg)
		return
	}

	peer := c.active
	if peer == "" {
		c.notice("[red]pick a peer first with /to <name>[-]")
		return
	}

	go func(msg string) {
		ctx, cancel := context.WithTimeout(context.Background(), defaultSendTimeout)
		defer cancel()

		entry, err := c.client.Send(ctx, peer, msg)
		c.app.QueueUpdateDraw(func() {
			if err != nil {
				log.Error("send message failed", zap.String("peer", peer), zap.Error(err))
				c.notice("[red]send to %s failed: %s[-]", tview.Escape(peer), tview.Escape(err.Error()))
				return
			}
			if c.active == peer {
				fmt.Fprint(c.chatbox, formatEntry(entry, c.client.Identity()))
				c.chatbox.ScrollToEnd()
			}
		})
	}(cmd.arg)
}

// switchTo must run on the UI goroutine.
func (c *App) switchTo(peer string) {
	if err := model.ValidateIdentity(peer); err != nil {
		c.notice("[red]invalid peer name[-]")
		return
	}

	history, err := c.client.Activate(peer)
	if err != nil {
		log.Error("load conversation failed", zap.String("peer", peer), zap.Error(err))
		c.notice("[red]cannot load conversation with %s[-]", tview.Escape(peer))
		return
	}

	c.active = peer
	c.known[peer] = struct{}{}

	c.chatbox.Clear()
	c.chatbox.SetTitle(fmt.Sprintf(" Chat with %s ", peer))
	for _, entry := range history {
		fmt.Fprint(c.chatbox, formatEntry(entry, c.client.Identity()))
	}
	c.chatbox.ScrollToEnd()
}

func (c *App) refreshPeers() {
	counts := c.client.Unread()
	for p := range counts {
		c.known[p] = struct{}{}
	}

	names := make([]string, 0, len(c.known))
	for p := range c.known {
		names = append(names, p)
	}
	sort.Strings(names)

	c.peers.Clear()
	for i, p := range names {
		c.peers.AddItem(peerLabel(p, counts[p], p == c.active), p, 0, nil)
		if p == c.active {
			c.peers.SetCurrentItem(i)
		}
	}
}

func (c *App) notice(format string, args ...any) {
	fmt.Fprintf(c.chatbox, "[gray]*[-] "+format+"\n", args...)
	c.chatbox.ScrollToEnd()
}

func (c *App) listenOnEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-c.client.Events():
			c.app.QueueUpdateDraw(func() {
				c.handleEvent(ev)
			})
		}
	}
}

func (c *App) handleEvent(ev client.Event) {
	switch ev.Kind {
	case client.EventInfo:
		c.notice("%s", tview.Escape(ev.Message))
	case client.EventError:
		c.notice("[red]%s[-]", tview.Escape(ev.Message))
	case client.EventDisconnected:
		c.notice("[red]disconnected from relay[-]")
	case client.EventMessage:
		c.known[ev.Peer] = struct{}{}
		if ev.Peer == c.active {
			fmt.Fprint(c.chatbox, formatEntry(ev.Entry, c.client.Identity()))
			c.chatbox.ScrollToEnd()
		}
		c.refreshPeers()
	}
}

type inputKind int

const (
	inputMessage inputKind = iota
	inputSwitch
	inputInvalid
)

type input struct {
	kind inputKind
	arg  string
}

// parseInput recognises "/to <peer>"; anything else is a message. A message
// that really starts with "/" can be sent as "//...".
func parseInput(text string) input {
	if strings.HasPrefix(text, "//") {
		return input{kind: inputMessage, arg: text[1:]}
	}
	if !strings.HasPrefix(text, "/") {
		return input{kind: inputMessage, arg: text}
	}

	fields := strings.Fields(text)
	switch {
	case fields[0] == "/to" && len(fields) == 2:
		return input{kind: inputSwitch, arg: fields[1]}
	case fields[0] == "/to":
		return input{kind: inputInvalid, arg: "usage: /to <peer>"}
	default:
		return input{kind: inputInvalid, arg: fmt.Sprintf("unknown command %s", fields[0])}
	}
}

func formatEntry(entry *model.ConversationEntry, self string) string {
	ts := entry.Timestamp.Local().Format("15:04")
	switch {
	case entry.Failed():
		return fmt.Sprintf("[gray]%s[-] [red]%s: %s[-]\n", ts, tview.Escape(entry.Sender), tview.Escape(entry.Text))
	case entry.Sender == self:
		return fmt.Sprintf("[gray]%s[-] [yellow]You:[-] %s\n", ts, tview.Escape(entry.Text))
	default:
		return fmt.Sprintf("[gray]%s[-] [green]%s:[-] %s\n", ts, tview.Escape(entry.Sender), tview.Escape(entry.Text))
	}
}

func peerLabel(peer string, unread int, active bool) string {
	label := tview.Escape(peer)
	if active {
		label = "> " + label
	}
	if unread > 0 {
		label = fmt.Sprintf("%s [red](%d)[-]", label, unread)
	}
	return label
}
