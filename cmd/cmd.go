// submodule cmd contains command definitions
package main

import "github.com/urfave/cli/v3"

func configFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "Path to configuration file",
		Value:   "config.toml",
	}
}

// setupCommand initializes config, directories, and the database schema
func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "setup",
		Usage: "Create config file, media directories, and database schema",
		Flags: []cli.Flag{
			configFlag(),
		},
		Action: r.Setup,
	}
}

// serveCommand runs the conversion service
func serveCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Start the karaoke conversion service",
		Flags: []cli.Flag{
			configFlag(),
			&cli.BoolFlag{
				Name:  "open",
				Usage: "Open the service URL in a browser",
			},
			&cli.BoolFlag{
				Name:  "strict",
				Usage: "Refuse to start when yt-dlp or demucs is unavailable",
			},
		},
		Action: r.Serve,
	}
}

// checkCommand reports external tool availability
func checkCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "check",
		Usage: "Verify that yt-dlp, demucs, and ffmpeg are installed",
		Flags: []cli.Flag{
			configFlag(),
			&cli.BoolFlag{
				Name:  "strict",
				Usage: "Exit non-zero when a required tool is missing",
			},
		},
		Action: r.Check,
	}
}

// statusCommand launches the live progress viewer
func statusCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "Watch conversion progress from a running service",
		Flags: []cli.Flag{
			configFlag(),
			&cli.StringFlag{
				Name:    "url",
				Aliases: []string{"u"},
				Usage:   "Base URL of the service (defaults to configured host/port)",
			},
		},
		Action: r.Status,
	}
}

// exportCommand writes playlists or the library to a file
func exportCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "export",
		Usage: "Export a playlist or the conversion library",
		Flags: []cli.Flag{
			configFlag(),
			&cli.IntFlag{
				Name:    "playlist",
				Aliases: []string{"p"},
				Usage:   "Playlist ID to export (omit for the whole library)",
			},
			&cli.StringFlag{
				Name:    "format",
				Aliases: []string{"f"},
				Usage:   "Output format: csv, md, txt",
				Value:   "csv",
			},
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "Output file path (defaults to stdout)",
			},
		},
		Action: r.Export,
	}
}
