package main

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"graphscape/application/reconciler"
	"graphscape/domain/core/aggregates"
	"graphscape/domain/core/valueobjects"
	"graphscape/domain/services"
	"graphscape/infrastructure/di"
	pkgerrors "graphscape/pkg/errors"
	"graphscape/pkg/protocol"
)

// NewHealthCommand creates the health command
func NewHealthCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Probe the backend",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, func(_ context.Context, c *di.Container) error {
				out := cmd.OutOrStdout()
				if opts.Format == "json" {
					return printJSON(out, map[string]string{
						"backend": c.Config.Backend.Target,
						"state":   string(c.Session.State()),
					})
				}
				fmt.Fprintf(out, "%s: %s\n", c.Config.Backend.Target, c.Session.State())
				return nil
			})
		},
	}
}

// SendOptions holds flags for the send command
type SendOptions struct {
	*RootOptions
	Object      string
	PayloadKind string
	Payload     string
}

// NewSendCommand creates the send command
func NewSendCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SendOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "send <create|read|update|delete>",
		Short: "Issue one action call",
		Long: `Issue one action call against the backend.

Example:
  graphscape send read --object Node --payload-kind string --payload A`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := opts.request(args[0])
			if err != nil {
				return err
			}
			return opts.run(cmd, func(ctx context.Context, c *di.Container) error {
				resp, err := c.Session.Send(ctx, req)
				if resp == nil {
					return err
				}
				if printErr := printResponse(cmd.OutOrStdout(), opts.Format, resp); printErr != nil {
					return printErr
				}
				return err
			})
		},
	}

	cmd.Flags().StringVar(&opts.Object, "object", "", "target object class")
	cmd.Flags().StringVar(&opts.PayloadKind, "payload-kind", "", "payload type (string|number|bool|bytes|json)")
	cmd.Flags().StringVar(&opts.Payload, "payload", "", "payload value; bytes are base64")

	return cmd
}

func (o *SendOptions) request(actionName string) (*protocol.ActionRequest, error) {
	action, err := protocol.ParseAction(actionName)
	if err != nil {
		return nil, err
	}
	var reqOpts []protocol.RequestOption
	if o.Object != "" {
		reqOpts = append(reqOpts, protocol.WithObjectName(o.Object))
	}
	if o.PayloadKind != "" {
		p, err := parsePayload(o.PayloadKind, o.Payload)
		if err != nil {
			return nil, err
		}
		reqOpts = append(reqOpts, protocol.WithPayload(p))
	}
	return protocol.NewActionRequest(action, reqOpts...)
}

// parsePayload converts a command line value into the payload variant named by kind
func parsePayload(kind, value string) (protocol.Payload, error) {
	switch kind {
	case "string":
		return protocol.StringPayload(value), nil
	case "number":
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return nil, pkgerrors.NewValidationError("payload is not a number").WithCause(err)
		}
		return protocol.NumberPayload(f), nil
	case "bool":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return nil, pkgerrors.NewValidationError("payload is not a boolean").WithCause(err)
		}
		return protocol.BoolPayload(b), nil
	case "bytes":
		b, err := base64.StdEncoding.DecodeString(value)
		if err != nil {
			return nil, pkgerrors.NewValidationError("payload is not base64").WithCause(err)
		}
		return protocol.BytesPayload(b), nil
	case "json":
		if !json.Valid([]byte(value)) {
			return nil, pkgerrors.NewValidationError("payload is not valid JSON")
		}
		return protocol.JSONPayload(value), nil
	default:
		return nil, pkgerrors.NewValidationError(fmt.Sprintf("unknown payload kind %q", kind))
	}
}

// ResponseView is the printable form of an action response
type ResponseView struct {
	Status     bool        `json:"status"`
	Message    string      `json:"message,omitempty"`
	ResultKind string      `json:"resultKind"`
	Result     interface{} `json:"result,omitempty"`
}

func printResponse(w io.Writer, format string, resp *protocol.ActionResponse) error {
	view := ResponseView{
		Status:     resp.Status,
		Message:    resp.Message,
		ResultKind: protocol.PayloadKind(resp.Result),
		Result:     resp.Result,
	}
	if jp, ok := resp.Result.(protocol.JSONPayload); ok {
		view.Result = json.RawMessage(jp)
	}
	if format == "json" {
		return printJSON(w, view)
	}
	fmt.Fprintf(w, "status:  %t\n", view.Status)
	if view.Message != "" {
		fmt.Fprintf(w, "message: %s\n", view.Message)
	}
	if view.Result != nil {
		fmt.Fprintf(w, "result:  (%s) %v\n", view.ResultKind, view.Result)
	}
	return nil
}

// StructureOptions holds flags for the structure command
type StructureOptions struct {
	*RootOptions
	Target string
	Hints  []string
	Once   bool
}

// NewStructureCommand creates the structure command
func NewStructureCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &StructureOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "structure <text>",
		Short: "Structure free text into a graph",
		Long: `Send free text to the backend and fold the returned fragments into a graph.

By default the streaming call is used; --once uses the unary call.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			target := valueobjects.ParseStructureTarget(opts.Target)
			req := &protocol.StructureRequest{RawInput: args[0], Target: target, Hints: opts.Hints}
			if err := req.Validate(); err != nil {
				return err
			}
			return opts.run(cmd, func(ctx context.Context, c *di.Container) error {
				call := c.Session.Structure
				if opts.Once {
					call = c.Session.StructureOnce
				}
				res, err := call(ctx, req)
				if res != nil {
					report := StructureReport{
						Result:     res,
						Graph:      c.Session.Snapshot(),
						Assessment: c.Session.Assess(target),
					}
					if printErr := report.print(cmd.OutOrStdout(), opts.Format); printErr != nil {
						return printErr
					}
				}
				return err
			})
		},
	}

	cmd.Flags().StringVar(&opts.Target, "structure", "concept", "structure target (concept|entity|scenario|algorithm)")
	cmd.Flags().StringSliceVar(&opts.Hints, "hint", nil, "hint passed to the backend, repeatable")
	cmd.Flags().BoolVar(&opts.Once, "once", false, "use the unary call instead of the stream")

	return cmd
}

// StructureReport is the output of the structure command
type StructureReport struct {
	Result     *reconciler.Result   `json:"result"`
	Graph      *aggregates.Snapshot `json:"graph"`
	Assessment services.Assessment  `json:"assessment"`
}

func (r StructureReport) print(w io.Writer, format string) error {
	if format == "json" {
		return printJSON(w, r)
	}
	fmt.Fprintf(w, "%s: %d nodes, %d edges added, %d dropped, confidence %.2f\n",
		r.Result.Reason, r.Result.NodesAdded, r.Result.EdgesAdded, r.Result.DroppedEdges, r.Result.Confidence)
	for _, warning := range r.Result.Warnings {
		fmt.Fprintf(w, "  warning (%s): %s\n", warning.Kind, warning.Message)
	}
	fmt.Fprintf(w, "assessment: %.2f\n", r.Assessment.Confidence)
	for _, warning := range r.Assessment.Warnings {
		fmt.Fprintf(w, "  %s\n", warning)
	}
	return nil
}

// SuggestOptions holds flags for the suggest command
type SuggestOptions struct {
	*RootOptions
	Module string
}

// NewSuggestCommand creates the suggest command
func NewSuggestCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SuggestOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "suggest <goal>",
		Short: "Ask the backend for algorithm suggestions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			module := valueobjects.ParseModuleKind(opts.Module)
			return opts.run(cmd, func(ctx context.Context, c *di.Container) error {
				resp, err := c.Session.SuggestAlgorithms(ctx, args[0], module)
				if err != nil {
					return err
				}
				return printSuggestions(cmd.OutOrStdout(), opts.Format, resp)
			})
		},
	}

	cmd.Flags().StringVar(&opts.Module, "module", "", "backend module (geometry|reasoning)")

	return cmd
}

func printSuggestions(w io.Writer, format string, resp *protocol.AlgorithmSuggestionResponse) error {
	if format == "json" {
		return printJSON(w, resp.Suggestions)
	}
	if len(resp.Suggestions) == 0 {
		fmt.Fprintln(w, "no suggestions")
		return nil
	}
	for _, s := range resp.Suggestions {
		fmt.Fprintf(w, "%s (%s) %.2f\n  %s\n", s.Name, s.AlgorithmID, s.Confidence, s.Rationale)
	}
	return nil
}
