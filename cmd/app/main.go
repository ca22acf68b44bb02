package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/starford/litlink/internal"
	pkgconfig "github.com/starford/litlink/pkg/config"
)

var version = "dev"

func loadConfig(cmd *cli.Command) (*internal.Config, error) {
	cfg := internal.NewDefaultConfig()
	if err := pkgconfig.LoadOptional(cmd.String("config"), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

func serve(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := internal.Run(ctx, internal.WithConfig(cfg)); err != nil {
		return fmt.Errorf("app run error: %w", err)
	}
	return nil
}

func serveMCP(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	return internal.RunMCP(ctx, internal.WithConfig(cfg), internal.WithVersion(version))
}

func create(ctx context.Context, cmd *cli.Command) error {
	key := cmd.Args().First()
	if key == "" {
		return errors.New("item key is required")
	}
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	var group *int
	if cmd.IsSet("group") {
		g := int(cmd.Int("group"))
		group = &g
	}
	note, err := internal.CreateNote(ctx, key, group, !cmd.Bool("no-annotations"),
		internal.WithConfig(cfg), internal.WithLogOutput(os.Stderr))
	if err != nil {
		return err
	}
	fmt.Println(note.Path)
	return nil
}

func render(_ context.Context, cmd *cli.Command) error {
	kind := cmd.Args().First()
	if kind == "" {
		return errors.New("template kind is required")
	}
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(cmd.String("item"))
	if err != nil {
		return fmt.Errorf("read item: %w", err)
	}
	out, err := internal.Render(kind, data, internal.WithConfig(cfg), internal.WithLogOutput(os.Stderr))
	if err != nil {
		return err
	}
	fmt.Print(out)
	return nil
}

func main() {
	cmd := &cli.Command{
		Name:    "litlink",
		Usage:   "Link Zotero items to Markdown literature notes",
		Version: version,
		Action:  serve,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "Path to config file",
				DefaultText: "config/config.yaml",
				Value:       "config/config.yaml",
				Sources:     cli.EnvVars("APP_CONFIG_FILE"),
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Run the HTTP API and keep the note cache in sync",
				Action: serve,
			},
			{
				Name:   "mcp",
				Usage:  "Serve MCP tools on stdio",
				Action: serveMCP,
			},
			{
				Name:      "create",
				Usage:     "Create the literature note of one item",
				ArgsUsage: "KEY",
				Action:    create,
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "group", Aliases: []string{"g"}, Usage: "Group library id"},
					&cli.BoolFlag{Name: "no-annotations", Usage: "Leave PDF annotations out"},
				},
			},
			{
				Name:      "render",
				Usage:     "Render one template kind against a JSON item",
				ArgsUsage: "KIND",
				Action:    render,
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "item", Aliases: []string{"i"}, Usage: "Path to the JSON item", Required: true},
				},
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
