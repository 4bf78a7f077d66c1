package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"iter"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/GriffinCanCode/copilot/internal/aggregate"
	"github.com/GriffinCanCode/copilot/internal/client"
	"github.com/GriffinCanCode/copilot/internal/conversation"
	"github.com/GriffinCanCode/copilot/internal/events"
	"github.com/GriffinCanCode/copilot/internal/stopsignal"
	"go.uber.org/zap"
)

func runAsk(args []string) error {
	var (
		c       common
		plugins stringList
	)
	fs := flag.NewFlagSet("ask", flag.ContinueOnError)
	c.register(fs)
	tone := fs.String("tone", "balanced", "creative, balanced or precise")
	fs.Var(&plugins, "plugin", "plugin to enable by name (repeatable)")
	convID := fs.String("conversation", "", "continue an existing conversation")
	imageURL := fs.String("image-url", "", "an image already uploaded to the service")
	saveDir := fs.String("save-images", "", "directory to download generated images into")
	if err := fs.Parse(args); err != nil {
		return err
	}

	q, err := client.ParseQuestion(strings.Join(fs.Args(), " "), *tone, plugins)
	if err != nil {
		return err
	}
	q.ImageURL = *imageURL

	e, err := c.setup(nil)
	if err != nil {
		return err
	}
	defer e.logger.Sync()
	log := e.logger.Component("ask")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	token, trigger := stopsignal.New()
	go interruptToStop(ctx, trigger, cancel, log)

	var conv *conversation.Conversation
	if *convID != "" {
		conv = e.copilot.Conversation(*convID)
	} else if conv, err = e.copilot.Create(ctx); err != nil {
		return err
	}

	s, err := e.copilot.Ask(ctx, conv, q, token)
	if err != nil {
		return err
	}
	summary, err := render(os.Stdout, s.Events(ctx))
	log.Info("conversation", zap.String("conversation_id", conv.ID), zap.Bool("stopped", token.IsSet()))
	if err != nil {
		return err
	}

	if *saveDir != "" && len(summary.Images) > 0 {
		paths, err := saveImages(ctx, e.copilot.HTTP(), *saveDir, summary.Images)
		for _, p := range paths {
			log.Info("image saved", zap.String("path", p))
		}
		return err
	}
	return nil
}

// interruptToStop turns the first SIGINT into a stop request and the second
// into cancellation.
func interruptToStop(ctx context.Context, trigger stopsignal.Trigger, cancel context.CancelFunc, log *zap.Logger) {
	sig := make(chan os.Signal, 2)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sig)

	select {
	case <-sig:
		log.Info("stopping answer; interrupt again to abort")
		trigger()
	case <-ctx.Done():
		return
	}
	select {
	case <-sig:
		cancel()
	case <-ctx.Done():
	}
}

// render streams text updates to w as they grow, shows notices and
// apologies, then writes the remaining summary sections.
func render(w io.Writer, seq iter.Seq2[events.Event, error]) (*aggregate.Summary, error) {
	summary := &aggregate.Summary{}
	var shown string
	for ev, err := range seq {
		if err != nil {
			fmt.Fprintln(w)
			return summary, err
		}
		summary.Add(ev)
		switch ev.Kind {
		case events.KindText:
			fprintDelta(w, shown, ev.Text)
			shown = ev.Text
		case events.KindNotice, events.KindApology:
			fmt.Fprintf(w, "\n[%s]\n", ev.Text)
		}
	}

	rest := *summary
	rest.Text = ""
	fmt.Fprintln(w)
	fmt.Fprint(w, rest.String())
	return summary, nil
}
