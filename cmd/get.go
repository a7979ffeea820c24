package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var getCmd = &cobra.Command{
	Use:   "get <request>",
	Short: "Execute a GET request",
	Long: `Execute a GET request and print the response.

The request is either a path relative to the Resource Manager endpoint or an
absolute https URL. Requests to hosts outside of azure.com are sent without
credentials. A response that wraps its result in "value" is unwrapped.

Examples:
  azi get "subscriptions?api-version=2016-06-01"
  azi get https://management.azure.com/providers?api-version=2018-05-01
  azi get "https://graph.windows.net/me?api-version=1.6" --resource https://graph.windows.net/`,
	Args: cobra.ExactArgs(1),
	RunE: runGet,
}

var postCmd = &cobra.Command{
	Use:   "post <request>",
	Short: "Execute a POST request",
	Long: `Execute a POST request with a JSON body and print the response.

The body is given with --data, either inline, as @file, or as - to read it
from stdin. Without --data, an empty body is sent.

Examples:
  azi post "subscriptions/<id>/providers/Microsoft.Web/register?api-version=2018-02-01"
  azi post "<url>" --data '{"type":"Usage"}'
  azi post "<url>" --data @query.json`,
	Args: cobra.ExactArgs(1),
	RunE: runPost,
}

var (
	getResource  string
	postResource string
	postData     string
)

func init() {
	rootCmd.AddCommand(getCmd)
	rootCmd.AddCommand(postCmd)
	addResourceFlag(getCmd.Flags(), &getResource)
	addResourceFlag(postCmd.Flags(), &postResource)
	postCmd.Flags().StringVarP(&postData, "data", "d", "", "JSON request body, @file or - for stdin")
}

func runGet(cmd *cobra.Command, args []string) error {
	a, err := connectApp(cmd)
	if err != nil {
		return err
	}

	body, err := a.service.Get(cmd.Context(), args[0], getResource)
	if err != nil {
		return err
	}
	return a.printer.Value(body)
}

func runPost(cmd *cobra.Command, args []string) error {
	data, err := readData(postData, cmd.InOrStdin())
	if err != nil {
		return err
	}

	a, err := connectApp(cmd)
	if err != nil {
		return err
	}

	body, err := a.service.Post(cmd.Context(), args[0], postResource, data)
	if err != nil {
		return err
	}
	return a.printer.Value(body)
}

// readData resolves a --data value to the request body.
func readData(value string, stdin io.Reader) ([]byte, error) {
	var (
		data []byte
		err  error
	)
	switch {
	case value == "":
		return nil, nil
	case value == "-":
		data, err = io.ReadAll(stdin)
	case strings.HasPrefix(value, "@"):
		data, err = os.ReadFile(strings.TrimPrefix(value, "@"))
	default:
		data = []byte(value)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read request body: %w", err)
	}
	if !json.Valid(data) {
		return nil, fmt.Errorf("request body is not valid JSON")
	}
	return data, nil
}
