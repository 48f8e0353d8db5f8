package fs

import "github.com/gobeaver/storkit"

func init() {
	storkit.Register("fs", func(options map[string]string) (storkit.Accessor, error) {
		root, err := storkit.RequireOption(options, "root")
		if err != nil {
			return nil, err
		}
		return New(root)
	})
}
