package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/saltyorg/vidprev/internal/binder"
	"github.com/saltyorg/vidprev/internal/config"
	"github.com/saltyorg/vidprev/internal/credentials"
	"github.com/saltyorg/vidprev/internal/dom"
	"github.com/saltyorg/vidprev/internal/dom/htmldom"
	"github.com/saltyorg/vidprev/internal/engine"
	"github.com/saltyorg/vidprev/internal/httpclient"
	"github.com/saltyorg/vidprev/internal/metrics"
	"github.com/saltyorg/vidprev/internal/overlay"
	"github.com/saltyorg/vidprev/internal/session"
)

// Synthetic layout for saved pages, which carry no geometry.
const (
	cardWidth   = 180
	cardHeight  = 270
	cardGap     = 20
	cardsPerRow = 6
)

type scanBinding struct {
	Index  int    `json:"index"`
	Kind   string `json:"kind"`
	ItemID string `json:"item_id,omitempty"`
	Error  string `json:"error,omitempty"`
}

type scanTransition struct {
	From   string `json:"from"`
	To     string `json:"to"`
	ItemID string `json:"item_id,omitempty"`
	Reason string `json:"reason,omitempty"`
	Mode   string `json:"mode,omitempty"`
}

type scanResult struct {
	Bindings    []scanBinding    `json:"bindings"`
	Transitions []scanTransition `json:"transitions,omitempty"`
	Source      string           `json:"source,omitempty"`
	Metrics     []metrics.Sample `json:"metrics,omitempty"`
}

func newScanCommand(ctx *commandContext) *cobra.Command {
	var (
		hover    int
		location string
		timeout  time.Duration
		asJSON   bool
	)

	cmd := &cobra.Command{
		Use:   "scan FILE",
		Short: "List the cards a saved Jellyfin page would bind",
		Long:  "Scan loads a saved Jellyfin web page, lays its cards out on a grid and lists the preview bindings. With --hover N it runs the full engine against the server, hovers card N and reports the session transitions; playback is checked by fetching the first bytes of each stream.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := loadPage(args[0], location)
			if err != nil {
				return err
			}
			cards := layoutCards(doc)

			res := scanResult{Bindings: describeBindings(cards)}
			if hover > 0 {
				if hover > len(cards) {
					return fmt.Errorf("card %d out of range (page has %d cards)", hover, len(cards))
				}
				cfg, err := ctx.preview(cmd)
				if err != nil {
					return err
				}
				store, err := ctx.store()
				if err != nil {
					return err
				}
				hovered, err := hoverCard(cmd.Context(), doc, cards[hover-1], hoverOptions{
					store:     store,
					config:    cfg,
					serverURL: ctx.serverURL,
					timeout:   timeout,
				})
				if err != nil {
					return err
				}
				res.Transitions = hovered.Transitions
				res.Source = hovered.Source
				res.Metrics = hovered.Metrics
			}

			if asJSON {
				return writeJSON(cmd, res)
			}
			printScan(cmd, res)
			return nil
		},
	}
	cmd.Flags().IntVar(&hover, "hover", 0, "Hover the Nth card (1-based) and run a preview session")
	cmd.Flags().StringVar(&location, "location", "", "Page URL to report to the engine")
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "How long to wait for the session to settle")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON")
	return cmd
}

func loadPage(path, location string) (*htmldom.Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var opts []htmldom.Option
	if location != "" {
		opts = append(opts, htmldom.WithLocation(location))
	}
	doc, err := htmldom.Parse(f, opts...)
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// layoutCards clears stale binding markers and gives every card and its
// binding target a box on a fixed grid.
func layoutCards(doc *htmldom.Document) []dom.Element {
	cards := doc.QuerySelectorAll(binder.CardSelector)
	for i, card := range cards {
		rect := dom.Rect{
			Top:    float64(i/cardsPerRow) * (cardHeight + cardGap),
			Left:   float64(i%cardsPerRow) * (cardWidth + cardGap),
			Width:  cardWidth,
			Height: cardHeight,
		}
		if el, ok := card.(*htmldom.Element); ok {
			el.RemoveAttr(binder.AttachedAttr)
		}
		doc.SetRect(card, rect)

		if b, err := binder.Resolve(card); err == nil && b.Target != card {
			if el, ok := b.Target.(*htmldom.Element); ok {
				el.RemoveAttr(binder.AttachedAttr)
			}
			doc.SetRect(b.Target, rect)
		}
	}
	return cards
}

func describeBindings(cards []dom.Element) []scanBinding {
	out := make([]scanBinding, 0, len(cards))
	for i, card := range cards {
		b, err := binder.Resolve(card)
		entry := scanBinding{Index: i + 1, Kind: "card", ItemID: b.ItemID}
		if b.Target != card {
			entry.Kind = "list"
		}
		if err != nil {
			entry.Error = err.Error()
		}
		out = append(out, entry)
	}
	return out
}

type hoverOptions struct {
	store     credentials.Store
	config    config.Preview
	serverURL string
	timeout   time.Duration
}

// hoverReport is what one hovered card produced.
type hoverReport struct {
	Transitions []scanTransition
	Source      string
	Metrics     []metrics.Sample
}

// hoverCard runs a headless engine over doc and hovers card. It reports the
// session transitions, the stream left playing and the session counters.
func hoverCard(ctx context.Context, doc *htmldom.Document, card dom.Element, opts hoverOptions) (hoverReport, error) {
	binding, err := binder.Resolve(card)
	if err != nil {
		return hoverReport{}, err
	}

	ov, err := doc.CreateOverlay()
	if err != nil {
		return hoverReport{}, err
	}
	ov.Video().PlayFunc = probeStream(httpclient.NewTraceClient("probe", config.GetTimeouts().HTTPClient))

	e, err := engine.New(engine.Options{
		Host:      doc,
		Store:     opts.store,
		Surface:   overlay.New(ov, ov.Video()),
		Config:    opts.config,
		ServerURL: opts.serverURL,
	})
	if err != nil {
		return hoverReport{}, err
	}

	reg := prometheus.NewRegistry()
	metrics.NewSessions(reg).Observe(e.Controller())

	var transitions []scanTransition
	e.Controller().OnTransition(func(t session.Transition) {
		st := scanTransition{From: t.From.String(), To: t.To.String(), ItemID: t.ItemID, Reason: string(t.Reason)}
		if t.To == session.Playing {
			st.Mode = t.Mode.String()
		}
		transitions = append(transitions, st)
	})

	e.Start(ctx)
	defer e.Close()

	enter := dom.EventMouseEnter
	if e.Touch() {
		enter = dom.EventTouchStart
	}
	doc.Dispatch(binding.Target, enter)

	waitCtx, cancel := context.WithTimeout(ctx, opts.timeout)
	defer cancel()
	if err := e.Idle(waitCtx); err != nil {
		return hoverReport{}, fmt.Errorf("session did not settle: %w", err)
	}

	report := hoverReport{Source: ov.Video().Source()}
	e.Call(func() { report.Transitions = append(report.Transitions, transitions...) })
	report.Metrics, err = metrics.Snapshot(reg)
	if err != nil {
		return hoverReport{}, fmt.Errorf("failed to gather session metrics: %w", err)
	}
	log.Debug().Int("transitions", len(report.Transitions)).Str("source", report.Source).Msg("Hover scan finished")
	return report, nil
}

// probeStream accepts a stream when the server answers a ranged GET for its
// first bytes with a success status.
func probeStream(client *http.Client) func(ctx context.Context, src string) error {
	return func(ctx context.Context, src string) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, src, nil)
		if err != nil {
			return err
		}
		req.Header.Set("Range", "bytes=0-1023")

		resp, err := client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1024))

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return fmt.Errorf("stream probe returned %d", resp.StatusCode)
		}
		return nil
	}
}

func printScan(cmd *cobra.Command, res scanResult) {
	out := cmd.OutOrStdout()

	rows := make([][]string, 0, len(res.Bindings))
	for _, b := range res.Bindings {
		rows = append(rows, []string{strconv.Itoa(b.Index), b.Kind, b.ItemID, b.Error})
	}
	fmt.Fprintln(out, renderTable([]string{"#", "Kind", "Item", "Error"}, rows, []columnAlignment{alignRight}))

	if len(res.Transitions) == 0 {
		return
	}
	rows = rows[:0]
	for _, t := range res.Transitions {
		rows = append(rows, []string{t.From, t.To, t.ItemID, t.Reason, t.Mode})
	}
	fmt.Fprintln(out, renderTable([]string{"From", "To", "Item", "Reason", "Mode"}, rows, nil))
	if res.Source != "" {
		fmt.Fprintln(out, "Playing:", res.Source)
	}

	if len(res.Metrics) == 0 {
		return
	}
	rows = rows[:0]
	for _, m := range res.Metrics {
		rows = append(rows, []string{m.Name, m.Labels, strconv.FormatFloat(m.Value, 'f', -1, 64)})
	}
	fmt.Fprintln(out, renderTable([]string{"Metric", "Labels", "Value"}, rows, []columnAlignment{alignLeft, alignLeft, alignRight}))
}
