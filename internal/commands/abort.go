package commands

import (
	"errors"

	"github.com/urfave/cli/v2"
)

func NewAbortUploadCommand(rt *Runtime) *cli.Command {
	return &cli.Command{
		Name:      "abort-upload",
		Usage:     "Abort an upload session and discard its parts",
		ArgsUsage: "<session-id>",
		Action: func(c *cli.Context) error {
			sessionID := c.Args().First()
			if sessionID == "" {
				return errors.New("missing upload session id")
			}

			client, err := rt.Client(c.Context)
			if err != nil {
				return err
			}
			if err := client.UploadSessions.Abort(c.Context, sessionID); err != nil {
				return err
			}
			rt.Log.WithField("session_id", sessionID).Info("Upload session aborted")
			return nil
		},
	}
}
