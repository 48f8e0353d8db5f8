package badgerkv

import "github.com/gobeaver/storkit"

func init() {
	storkit.Register("badgerkv", func(options map[string]string) (storkit.Accessor, error) {
		inMemory, err := storkit.BoolOption(options, "in_memory", false)
		if err != nil {
			return nil, err
		}
		cfg := Config{InMemory: inMemory}
		if !inMemory {
			dir, err := storkit.RequireOption(options, "dir")
			if err != nil {
				return nil, err
			}
			cfg.Dir = dir
		}
		return New(cfg)
	})
}
