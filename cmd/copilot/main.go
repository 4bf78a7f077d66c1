package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/GriffinCanCode/copilot/internal/client"
	"github.com/GriffinCanCode/copilot/internal/config"
	"github.com/GriffinCanCode/copilot/internal/credentials"
	"github.com/GriffinCanCode/copilot/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/copilot/internal/logging"
	"github.com/GriffinCanCode/copilot/internal/server"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

const usage = `usage: copilot <command> [flags] [args]

commands:
  ask    stream an answer to a question
  list   list conversations
  draw   generate images for a prompt
  serve  run the HTTP bridge
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	// A missing .env is fine; the environment may already be set.
	_ = godotenv.Load()

	var err error
	switch cmd, args := os.Args[1], os.Args[2:]; cmd {
	case "ask":
		err = runAsk(args)
	case "list":
		err = runList(args)
	case "draw":
		err = runDraw(args)
	case "serve":
		err = runServe(args)
	case "-h", "-help", "--help", "help":
		fmt.Fprint(os.Stdout, usage)
		return
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", cmd, usage)
		os.Exit(2)
	}

	if err != nil && !errors.Is(err, flag.ErrHelp) {
		fmt.Fprintln(os.Stderr, "copilot:", err)
		os.Exit(1)
	}
}

// common holds the flags every command accepts.
type common struct {
	configPath string
	cookieFile string
	dev        bool
}

func (c *common) register(fs *flag.FlagSet) {
	fs.StringVar(&c.configPath, "config", "", "YAML or TOML config file")
	fs.StringVar(&c.cookieFile, "cookie-file", "", "cookie export (JSON) or raw cookie header file")
	fs.BoolVar(&c.dev, "dev", false, "development logging (debug level, console format)")
}

// env is everything a command needs once flags are parsed.
type env struct {
	cfg     *config.Config
	logger  *logging.Logger
	copilot *client.Client
}

func (c *common) setup(metrics *monitoring.Metrics) (*env, error) {
	var (
		cfg *config.Config
		err error
	)
	if c.configPath != "" {
		cfg, err = config.LoadFile(c.configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}
	if c.cookieFile != "" {
		cfg.Auth.CookieFile = c.cookieFile
		cfg.Auth.Cookie = ""
	}

	logCfg := logging.Config{Level: cfg.Logging.Level, Development: cfg.Logging.Development}
	if c.dev {
		logCfg = logging.DevelopmentConfig()
	}
	logger, err := logging.New(logCfg)
	if err != nil {
		return nil, err
	}

	creds, err := credentials.FromConfig(cfg.Auth)
	if err != nil {
		return nil, err
	}
	copilot, err := client.New(cfg, creds, client.Options{Logger: logger.Logger, Metrics: metrics})
	if err != nil {
		return nil, err
	}
	return &env{cfg: cfg, logger: logger, copilot: copilot}, nil
}

// stringList collects a repeatable flag.
type stringList []string

func (s *stringList) String() string { return strings.Join(*s, ",") }

func (s *stringList) Set(v string) error {
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			*s = append(*s, part)
		}
	}
	return nil
}

func runList(args []string) error {
	var c common
	fs := flag.NewFlagSet("list", flag.ContinueOnError)
	c.register(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	e, err := c.setup(nil)
	if err != nil {
		return err
	}
	defer e.logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	convs, err := e.copilot.List(ctx)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tTONE\tUPDATED")
	for _, conv := range convs {
		meta := conv.Meta()
		updated := ""
		if !meta.UpdatedAt.IsZero() {
			updated = meta.UpdatedAt.Local().Format("2006-01-02 15:04")
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", conv.ID, meta.Name, meta.Tone, updated)
	}
	return w.Flush()
}

func runDraw(args []string) error {
	var c common
	fs := flag.NewFlagSet("draw", flag.ContinueOnError)
	c.register(fs)
	saveDir := fs.String("save-images", "", "directory to download the images into")
	if err := fs.Parse(args); err != nil {
		return err
	}
	prompt := strings.TrimSpace(strings.Join(fs.Args(), " "))
	if prompt == "" {
		return errors.New("draw needs a prompt")
	}
	e, err := c.setup(nil)
	if err != nil {
		return err
	}
	defer e.logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	images, err := e.copilot.DrawImage(ctx, prompt)
	if err != nil {
		return err
	}
	for _, img := range images {
		fmt.Println(img)
	}
	if *saveDir == "" {
		return nil
	}
	paths, err := saveImages(ctx, e.copilot.HTTP(), *saveDir, images)
	for _, p := range paths {
		e.logger.Info("image saved", zap.String("path", p))
	}
	return err
}

func runServe(args []string) error {
	var c common
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	c.register(fs)
	port := fs.String("port", "", "listen port (overrides PORT)")
	host := fs.String("host", "", "listen host (overrides HOST)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	metrics := monitoring.NewMetrics(prometheus.DefaultRegisterer)
	e, err := c.setup(metrics)
	if err != nil {
		return err
	}
	defer e.logger.Sync()
	if *port != "" {
		e.cfg.Server.Port = *port
	}
	if *host != "" {
		e.cfg.Server.Host = *host
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := server.NewServer(e.cfg, e.copilot, server.Options{
		Logger:  e.logger.Logger,
		Metrics: metrics,
	})
	return srv.Run(ctx)
}

// fprintDelta writes the part of next not yet written. Updates normally
// extend the previous text; when one does not, the whole text is written on
// a fresh line.
func fprintDelta(w io.Writer, prev, next string) {
	if rest, ok := strings.CutPrefix(next, prev); ok {
		fmt.Fprint(w, rest)
		return
	}
	fmt.Fprint(w, "\n"+next)
}
