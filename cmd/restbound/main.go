package main

import (
	"log"
	"os"

	"github.com/spf13/cobra"

	cli "github.com/restbound/restbound/internal/cli"
)

func main() {
	root := &cobra.Command{
		Use:   "restbound",
		Short: "Schema-driven REST client: call any endpoint a service describes",
	}

	root.AddCommand(newOpsCmd())
	root.AddCommand(newCallCmd())
	root.AddCommand(newValidateCmd())

	if err := root.Execute(); err != nil {
		log.Println(err)
		os.Exit(1)
	}
}

func connectFlags(cmd *cobra.Command, p *cli.ConnectParams) {
	cmd.Flags().StringVar(&p.URL, "url", "", "Service base URL")
	cmd.Flags().StringVarP(&p.Username, "username", "u", "", "API username")
	cmd.Flags().StringVarP(&p.Password, "password", "p", "", "API password")
	cmd.Flags().StringVar(&p.Profile, "profile", "modern", "Built-in vendor profile (modern|classic)")
	cmd.Flags().StringVar(&p.ProfileFile, "profile-file", "", "Custom vendor profile YAML")
	cmd.Flags().BoolVarP(&p.Insecure, "insecure", "k", false, "Skip TLS verification")
	cmd.Flags().DurationVar(&p.Timeout, "timeout", 0, "Request timeout (default 240s)")
	cmd.Flags().BoolVarP(&p.Verbose, "verbose", "v", false, "Debug logging")
}

func newOpsCmd() *cobra.Command {
	var p cli.ConnectParams
	cmd := &cobra.Command{
		Use:   "ops",
		Short: "List the operations generated from the service schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.RunOps(cmd.Context(), p)
		},
	}
	connectFlags(cmd, &p)
	return cmd
}

func newCallCmd() *cobra.Command {
	var p cli.ConnectParams
	cmd := &cobra.Command{
		Use:   "call <operation> [key=value ...]",
		Short: "Invoke one generated operation",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.RunCall(cmd.Context(), p, args[0], args[1:])
		},
	}
	connectFlags(cmd, &p)
	return cmd
}

func newValidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <spec-file>",
		Short: "Validate a local OpenAPI document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.RunValidate(args[0])
		},
	}
	return cmd
}
