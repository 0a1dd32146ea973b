// get.go fetches a single object or a collection and prints it.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode"

	"github.com/spf13/cobra"
	"sigs.k8s.io/yaml"

	"github.com/example/kfl/pkg/fluent"
)

func newGetCommand(flags *rootFlags) *cobra.Command {
	var apiVersion, output, selector, fieldSelector string
	cmd := &cobra.Command{
		Use:   "get TYPE [NAME]",
		Short: "Fetch a resource or collection as JSON or YAML",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, _, err := buildClient(flags)
			if err != nil {
				return err
			}
			req := resourceRequest(c, apiVersion, args[0], flags.namespace)
			if len(args) == 2 {
				req.Name(args[1])
			}
			if selector != "" {
				req.LabelSelector(selector)
			}
			if fieldSelector != "" {
				req.FieldSelector(fieldSelector)
			}
			obj, err := fluent.As[map[string]any](cmd.Context(), req, true)
			if err != nil {
				return err
			}
			return printObject(os.Stdout, *obj, output)
		},
	}
	cmd.Flags().StringVar(&apiVersion, "api-version", "v1", "API group/version of the resource type")
	cmd.Flags().StringVarP(&output, "output", "o", "json", "Output format (json or yaml)")
	cmd.Flags().StringVarP(&selector, "selector", "l", "", "Label selector to filter a collection")
	cmd.Flags().StringVar(&fieldSelector, "field-selector", "", "Field selector to filter a collection")
	return cmd
}

// resourceRequest addresses TYPE either as a Kind (Pod) or as an
// already-plural resource segment (pods).
func resourceRequest(c *fluent.Client, apiVersion, typeArg, namespace string) *fluent.Request {
	if apiVersion == "" {
		apiVersion = "v1"
	}
	r := c.Request()
	if typeArg != "" && unicode.IsUpper(rune(typeArg[0])) {
		r.GVK(apiVersion, typeArg)
	} else {
		group, version := cutAPIVersion(apiVersion)
		r.Group(group).Version(version).Resource(typeArg)
	}
	if namespace != "" {
		r.Namespace(namespace)
	}
	return r
}

func cutAPIVersion(apiVersion string) (group, version string) {
	if g, v, ok := strings.Cut(apiVersion, "/"); ok {
		return g, v
	}
	return "", apiVersion
}

func printObject(w io.Writer, obj any, format string) error {
	switch format {
	case "yaml":
		data, err := yaml.Marshal(obj)
		if err != nil {
			return fmt.Errorf("render yaml: %w", err)
		}
		_, err = w.Write(data)
		return err
	case "json", "":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(obj)
	default:
		return fmt.Errorf("unknown output format %q (expected json or yaml)", format)
	}
}
