package cli

import (
	"github.com/spf13/pflag"
)

// bind ties a flag to a configuration key. Unset flags leave the key to the
// config file, the environment or the default.
func (a *app) bind(key string, flag *pflag.Flag) {
	if err := a.v.BindPFlag(key, flag); err != nil {
		// BindPFlag only fails for a nil flag.
		panic(err)
	}
}
