package generator

import (
	"github.com/adaricorp/tsn-setup/config"
	"github.com/adaricorp/tsn-setup/script"

	"github.com/pkg/errors"
)

// ExitCode maps a generation error to the process exit status: 2 for a
// missing configuration key, 1 for anything else.
func ExitCode(err error) int {
	var missing *config.MissingKeyError
	if errors.As(err, &missing) {
		return 2
	}
	return 1
}

// WriteScript loads the configuration at configPath and writes the commands
// generated from it to outputPath. The header goes out before the
// configuration is checked, so a failed run leaves a script that does nothing.
func WriteScript(configPath string, outputPath string, opts Options) (*Result, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	out, err := script.Create(outputPath)
	if err != nil {
		return nil, err
	}

	result, err := Generate(cfg, opts)
	if err != nil {
		out.Close()
		return nil, err
	}

	if err := out.Write(result.Script); err != nil {
		out.Close()
		return nil, err
	}
	if err := out.Close(); err != nil {
		return nil, errors.Wrapf(err, "Couldn't write %s", outputPath)
	}

	return result, nil
}
