package memory

import "github.com/gobeaver/storkit"

func init() {
	storkit.Register("memory", func(options map[string]string) (storkit.Accessor, error) {
		maxSize, err := storkit.IntOption(options, "max_size", 0)
		if err != nil {
			return nil, err
		}
		return New(Config{MaxSize: maxSize}), nil
	})
}
