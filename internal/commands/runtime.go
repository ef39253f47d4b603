package commands

import (
	"context"
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/jdollar/box-go/internal/config"
	"github.com/jdollar/box-go/pkg/box"
)

// Runtime is what the commands share: the loaded configuration, the logger
// and the metrics registry. The app's Before hook fills it in.
type Runtime struct {
	Config     config.Configuration
	Log        *logrus.Logger
	Registerer prometheus.Registerer
	// HTTPClient overrides the client's transport.
	HTTPClient *http.Client
}

func validateConfigValues(conf config.Configuration) error {
	boxConf := conf.Box
	if boxConf.AccessToken != "" {
		return nil
	}

	requiredStringFields := []struct {
		Value string
		Name  string
	}{
		{boxConf.ClientID, "client_id"},
		{boxConf.ClientSecret, "client_secret"},
		{boxConf.SubjectType, "subject_type"},
		{boxConf.SubjectId, "subject_id"},
	}
	for _, field := range requiredStringFields {
		if field.Value == "" {
			return errors.New("missing box " + field.Name + " (or box access_token)")
		}
	}
	return nil
}

// Client builds an API client from the configuration.
func (rt *Runtime) Client(ctx context.Context) (*box.Client, error) {
	if err := validateConfigValues(rt.Config); err != nil {
		return nil, err
	}

	boxConf := rt.Config.Box
	return box.NewClient(ctx, box.ClientOpts{
		SubjectType:    boxConf.SubjectType,
		SubjectId:      boxConf.SubjectId,
		ClientID:       boxConf.ClientID,
		ClientSecret:   boxConf.ClientSecret,
		AccessToken:    boxConf.AccessToken,
		APIURL:         boxConf.APIURL,
		UploadURL:      boxConf.UploadURL,
		TokenURL:       boxConf.TokenURL,
		HTTPClient:     rt.HTTPClient,
		Timeout:        rt.Config.HTTP.Timeout,
		MaxRetries:     rt.Config.HTTP.MaxRetries,
		RetryBaseDelay: rt.Config.HTTP.RetryBaseDelay,
		Logger:         rt.Log,
		Registerer:     rt.Registerer,
	}), nil
}
