package s3

import (
	"context"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/gobeaver/storkit"
)

func init() {
	storkit.Register("s3", func(options map[string]string) (storkit.Accessor, error) {
		return NewFromOptions(context.Background(), options)
	})
}

// NewFromOptions builds a driver from a flat option map. Required keys:
// "bucket". Optional: "region", "prefix", "endpoint", "access_key_id",
// "secret_access_key", "force_path_style". Credentials fall back to the
// default AWS chain when not given explicitly.
func NewFromOptions(ctx context.Context, options map[string]string) (*Driver, error) {
	bucket, err := storkit.RequireOption(options, "bucket")
	if err != nil {
		return nil, err
	}
	forcePathStyle, err := storkit.BoolOption(options, "force_path_style", false)
	if err != nil {
		return nil, err
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{}
	if region := options["region"]; region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(region))
	}
	if keyID := options["access_key_id"]; keyID != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(keyID, options["secret_access_key"], "")))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, storkit.WrapError(storkit.KindInvalidInput, storkit.OpOpen, "", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if endpoint := options["endpoint"]; endpoint != "" {
			o.BaseEndpoint = &endpoint
		}
		o.UsePathStyle = forcePathStyle
	})

	var driverOpts []Option
	if prefix := options["prefix"]; prefix != "" {
		driverOpts = append(driverOpts, WithPrefix(prefix))
	}
	return New(client, bucket, driverOpts...), nil
}
