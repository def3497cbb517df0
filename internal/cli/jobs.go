package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/auralforge/auralforge/pkg/sdk"
)

type submitFlags struct {
	projectID      string
	callbackURL    string
	idempotencyKey string
	wait           bool
	interval       time.Duration
	timeout        time.Duration
}

func (f *submitFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.projectID, "project", "", "project ID (default: the team's default project)")
	cmd.Flags().StringVar(&f.callbackURL, "callback-url", "", "HTTPS URL notified when the job finishes")
	cmd.Flags().StringVar(&f.idempotencyKey, "idempotency-key", "", "reuse the job of an earlier submission with this key")
	cmd.Flags().BoolVar(&f.wait, "wait", false, "poll until the job completes or fails")
	cmd.Flags().DurationVar(&f.interval, "interval", time.Second, "poll interval with --wait")
	cmd.Flags().DurationVar(&f.timeout, "timeout", 2*time.Minute, "give up waiting after this long")
}

func (f *submitFlags) options() []sdk.RequestOption {
	if f.idempotencyKey == "" {
		return nil
	}
	return []sdk.RequestOption{sdk.WithIdempotencyKey(f.idempotencyKey)}
}

// finish prints the submission, or the finished job when --wait is set.
func (f *submitFlags) finish(cmd *cobra.Command, c *sdk.Client, sub *sdk.Submission) error {
	if !f.wait {
		return printJSON(cmd.OutOrStdout(), sub)
	}
	job, err := c.Jobs.Wait(cmd.Context(), sub.ID, sdk.WaitOptions{Interval: f.interval, Timeout: f.timeout})
	if job != nil {
		if perr := printJSON(cmd.OutOrStdout(), job); perr != nil {
			return perr
		}
	}
	return err
}

func newTTSCommand(g *globals) *cobra.Command {
	var (
		f   submitFlags
		req sdk.SynthesizeRequest
	)
	cmd := &cobra.Command{
		Use:   "tts TEXT",
		Short: "Submit a text-to-speech job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := g.client()
			if err != nil {
				return err
			}
			req.Text = args[0]
			req.ProjectID = f.projectID
			req.CallbackURL = f.callbackURL
			sub, err := c.TTS.Synthesize(cmd.Context(), req, f.options()...)
			if err != nil {
				return err
			}
			return f.finish(cmd, c, sub)
		},
	}
	cmd.Flags().StringVar(&req.VoiceID, "voice", "alloy", "voice ID or vc_ clone ID")
	cmd.Flags().StringVar(&req.Language, "language", "", "BCP 47 language tag")
	cmd.Flags().StringVar(&req.Format, "format", "wav", "output format")
	f.register(cmd)
	return cmd
}

func newSTTCommand(g *globals) *cobra.Command {
	var (
		f   submitFlags
		req sdk.TranscribeRequest
	)
	cmd := &cobra.Command{
		Use:   "stt",
		Short: "Submit a speech-to-text job",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := g.client()
			if err != nil {
				return err
			}
			req.ProjectID = f.projectID
			req.CallbackURL = f.callbackURL
			sub, err := c.STT.Transcribe(cmd.Context(), req, f.options()...)
			if err != nil {
				return err
			}
			return f.finish(cmd, c, sub)
		},
	}
	cmd.Flags().StringVar(&req.SourceJobID, "source-job", "", "completed TTS job whose audio to transcribe")
	cmd.Flags().StringVar(&req.AudioURL, "audio-url", "", "URL of the audio to transcribe")
	cmd.Flags().StringVar(&req.Language, "language", "", "BCP 47 language tag")
	f.register(cmd)
	return cmd
}

func newCloneCommand(g *globals) *cobra.Command {
	var (
		f   submitFlags
		req sdk.CloneRequest
	)
	cmd := &cobra.Command{
		Use:   "clone NAME",
		Short: "Submit a voice cloning job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := g.client()
			if err != nil {
				return err
			}
			req.Name = args[0]
			req.ProjectID = f.projectID
			req.CallbackURL = f.callbackURL
			sub, err := c.Voices.Clone(cmd.Context(), req, f.options()...)
			if err != nil {
				return err
			}
			return f.finish(cmd, c, sub)
		},
	}
	cmd.Flags().StringVar(&req.SampleJobID, "sample-job", "", "completed TTS job to use as the sample")
	cmd.Flags().StringVar(&req.SampleURL, "sample-url", "", "URL of the voice sample")
	f.register(cmd)
	return cmd
}

func newVoicesCommand(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "voices",
		Short: "List the team's voice clones",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := g.client()
			if err != nil {
				return err
			}
			voices, err := c.Voices.List(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), voices)
		},
	}
}

func newJobCommand(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "job",
		Short: "Inspect jobs",
	}

	get := &cobra.Command{
		Use:   "get ID",
		Short: "Print a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := g.client()
			if err != nil {
				return err
			}
			job, err := c.Jobs.Get(cmd.Context(), args[0])
			if err != nil {
				if sdk.IsNotFound(err) {
					return fmt.Errorf("job %s not found", args[0])
				}
				return err
			}
			return printJSON(cmd.OutOrStdout(), job)
		},
	}

	var opts sdk.WaitOptions
	wait := &cobra.Command{
		Use:   "wait ID",
		Short: "Poll a job until it completes or fails",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := g.client()
			if err != nil {
				return err
			}
			job, err := c.Jobs.Wait(cmd.Context(), args[0], opts)
			if job != nil {
				if perr := printJSON(cmd.OutOrStdout(), job); perr != nil {
					return perr
				}
			}
			return err
		},
	}
	wait.Flags().DurationVar(&opts.Interval, "interval", time.Second, "poll interval")
	wait.Flags().DurationVar(&opts.Timeout, "timeout", 2*time.Minute, "give up after this long")

	cmd.AddCommand(get, wait)
	return cmd
}
