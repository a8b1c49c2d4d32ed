package manifest

import (
	"context"
	"fmt"

	"github.com/compose-spec/compose-go/v2/loader"
	"github.com/compose-spec/compose-go/v2/types"
	"gopkg.in/yaml.v3"
)

// =============================================================================
// Export Verification
// =============================================================================

// VerifyExport re-parses an exported compose document with the compose-go
// loader. Rendering and export are pure functions of validated inputs, so a
// parse failure here means the renderer emitted something compose tooling
// would reject - a contract defect surfaced before anything reaches the
// container runtime.
func VerifyExport(composeYAML []byte) error {
	var dict map[string]interface{}
	if err := yaml.Unmarshal(composeYAML, &dict); err != nil {
		return fmt.Errorf("%w: exported manifest is not valid YAML: %v", ErrRender, err)
	}
	if dict == nil {
		return fmt.Errorf("%w: exported manifest is empty", ErrRender)
	}

	project, err := loader.LoadWithContext(context.Background(), types.ConfigDetails{
		ConfigFiles: []types.ConfigFile{
			{
				Content: composeYAML,
				Config:  dict,
			},
		},
	}, func(opts *loader.Options) {
		opts.SetProjectName("regiond-verify", false)
		opts.SkipValidation = false
		opts.SkipInterpolation = true // Rendered values are literal, never templated
		opts.SkipNormalization = true
		opts.SkipExtends = true
	})
	if err != nil {
		return fmt.Errorf("%w: exported manifest failed compose validation: %v", ErrRender, err)
	}

	if len(project.Services) == 0 {
		return fmt.Errorf("%w: exported manifest defines no services", ErrRender)
	}
	return nil
}
