package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"eodl/internal/errs"
	"eodl/internal/models"
)

const (
	DefaultCatalogEndpoint = "https://catalogue.dataspace.copernicus.eu/resto/api/collections/"
	DefaultS3Endpoint      = "https://eodata.dataspace.copernicus.eu/"
)

const (
	FlagS3EndpointURL     = "s3-endpoint-url"
	FlagS3AccessKeyID     = "s3-access-key-id"
	FlagS3SecretAccessKey = "s3-secret-access-key"
	FlagKeysFile          = "keys-file"
	FlagConfig            = "config"
	FlagGeometry          = "geometry"
	FlagOutput            = "output"
	FlagParallelism       = "parallelism"
	FlagNoDownload        = "no-download"
	FlagOverwrite         = "overwrite"
	FlagRetryAttempts     = "retry-attempts"
	FlagLogLevel          = "log-level"
)

// Settings holds the command line configuration. Every flag can also be
// set through the environment variable of the same name in upper snake
// case, e.g. --keys-file and KEYS_FILE.
type Settings struct {
	S3EndpointURL     string
	S3AccessKeyID     string
	S3SecretAccessKey string
	KeysFile          string
	ConfigFile        string
	GeometryFile      string
	OutputDir         string
	Parallelism       int
	NoDownload        bool
	Overwrite         string
	RetryAttempts     int
	LogLevel          string
}

// LoadDotEnv loads a .env file from the working directory if there is one.
func LoadDotEnv() {
	if err := godotenv.Load(); err != nil {
		slog.Debug(".env file not found, using environment variables only")
	}
}

func RegisterFlags(flags *pflag.FlagSet) {
	flags.String(FlagS3EndpointURL, "", "S3 endpoint URL (default: keys file value or "+DefaultS3Endpoint+")")
	flags.String(FlagS3AccessKeyID, "", "S3 access key id (overrides the keys file)")
	flags.String(FlagS3SecretAccessKey, "", "S3 secret access key (overrides the keys file)")
	flags.StringP(FlagKeysFile, "k", "", "JSON file with endpointUrl, accessKeyId and secretAccessKey")
	flags.StringP(FlagConfig, "c", "", "JSON query configuration file (required)")
	flags.StringP(FlagGeometry, "g", "", "GeoJSON file whose geometry replaces the query geometry")
	flags.StringP(FlagOutput, "o", ".", "Output directory")
	flags.IntP(FlagParallelism, "p", 5, "Maximum number of concurrent downloads")
	flags.Bool(FlagNoDownload, false, "List matching objects without downloading them")
	flags.String(FlagOverwrite, "if-changed", "Overwrite policy for existing files: if-changed or always")
	flags.Int(FlagRetryAttempts, 4, "Attempts per page fetch, listing and transfer")
	flags.String(FlagLogLevel, "info", "Log level: debug, info, warn or error")
}

// EnvName returns the environment variable bound to a flag.
func EnvName(flag string) string {
	return strings.ToUpper(strings.ReplaceAll(flag, "-", "_"))
}

// BindFlags binds every flag in flags to v and to its environment variable.
// An explicitly set flag takes precedence over the environment.
func BindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	var bindErr error
	flags.VisitAll(func(f *pflag.Flag) {
		if bindErr != nil {
			return
		}
		if err := v.BindPFlag(f.Name, f); err != nil {
			bindErr = fmt.Errorf("bind flag %s: %w", f.Name, err)
			return
		}
		if err := v.BindEnv(f.Name, EnvName(f.Name)); err != nil {
			bindErr = fmt.Errorf("bind env %s: %w", EnvName(f.Name), err)
		}
	})
	return bindErr
}

func Load(v *viper.Viper) (*Settings, error) {
	s := &Settings{
		S3EndpointURL:     v.GetString(FlagS3EndpointURL),
		S3AccessKeyID:     v.GetString(FlagS3AccessKeyID),
		S3SecretAccessKey: v.GetString(FlagS3SecretAccessKey),
		KeysFile:          v.GetString(FlagKeysFile),
		ConfigFile:        v.GetString(FlagConfig),
		GeometryFile:      v.GetString(FlagGeometry),
		OutputDir:         v.GetString(FlagOutput),
		Parallelism:       v.GetInt(FlagParallelism),
		NoDownload:        v.GetBool(FlagNoDownload),
		Overwrite:         v.GetString(FlagOverwrite),
		RetryAttempts:     v.GetInt(FlagRetryAttempts),
		LogLevel:          v.GetString(FlagLogLevel),
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Settings) Validate() error {
	if s.Parallelism < 1 {
		return errs.Configf("parallelism must be at least 1, got %d", s.Parallelism)
	}
	if s.RetryAttempts < 1 {
		return errs.Configf("retry attempts must be at least 1, got %d", s.RetryAttempts)
	}
	if s.OutputDir == "" {
		s.OutputDir = "."
	}
	if _, err := ParseLogLevel(s.LogLevel); err != nil {
		return err
	}
	return nil
}

func ParseLogLevel(level string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return 0, errs.Configf("invalid log level %q", level)
	}
	return l, nil
}

// Keys is the credentials document.
type Keys struct {
	EndpointURL     string `json:"endpointUrl"`
	AccessKeyID     string `json:"accessKeyId"`
	SecretAccessKey string `json:"secretAccessKey"`
}

// LoadKeys reads a credentials document. An empty path yields empty keys.
func LoadKeys(path string) (*Keys, error) {
	keys := &Keys{}
	if path == "" {
		return keys, nil
	}
	if err := decodeFile(path, keys); err != nil {
		return nil, err
	}
	return keys, nil
}

// ResolveKeys merges flag values over the credentials file and applies the
// default endpoint. Both the access key id and the secret are required.
func (s *Settings) ResolveKeys(file *Keys) (Keys, error) {
	keys := Keys{}
	if file != nil {
		keys = *file
	}
	if s.S3EndpointURL != "" {
		keys.EndpointURL = s.S3EndpointURL
	}
	if s.S3AccessKeyID != "" {
		keys.AccessKeyID = s.S3AccessKeyID
	}
	if s.S3SecretAccessKey != "" {
		keys.SecretAccessKey = s.S3SecretAccessKey
	}
	if keys.EndpointURL == "" {
		keys.EndpointURL = DefaultS3Endpoint
	}
	if keys.AccessKeyID == "" || keys.SecretAccessKey == "" {
		return Keys{}, errs.Configf("S3 credentials are missing: provide --%s or set accessKeyId and secretAccessKey", FlagKeysFile)
	}
	return keys, nil
}

// Query is the search configuration document.
type Query struct {
	EndpointURL  string         `json:"endpointUrl"`
	Collection   string         `json:"collection"`
	Query        map[string]any `json:"query"`
	Depaginate   bool           `json:"depaginate"`
	GlobPatterns []string       `json:"globPatterns"`
}

func LoadQuery(path string) (*Query, error) {
	q := &Query{}
	if err := decodeFile(path, q); err != nil {
		return nil, err
	}
	if q.EndpointURL == "" {
		q.EndpointURL = DefaultCatalogEndpoint
	}
	return q, nil
}

// Spec converts the document into a search spec. Query values must be
// scalars; a "geometry" entry becomes the search geometry.
func (q *Query) Spec() (models.QuerySpec, error) {
	spec := models.QuerySpec{
		Endpoint:     q.EndpointURL,
		Collection:   q.Collection,
		Filters:      make(map[string]string, len(q.Query)),
		Depaginate:   q.Depaginate,
		GlobPatterns: append([]string(nil), q.GlobPatterns...),
	}
	if spec.Endpoint == "" {
		spec.Endpoint = DefaultCatalogEndpoint
	}

	for field, value := range q.Query {
		var s string
		switch v := value.(type) {
		case string:
			s = v
		case json.Number:
			s = v.String()
		case bool:
			s = fmt.Sprint(v)
		default:
			return models.QuerySpec{}, errs.Configf("query field %q must be a string, number or boolean, got %T", field, value)
		}
		spec.Filters[field] = s
	}

	if g, ok := spec.Filters["geometry"]; ok {
		spec.Geometry = g
		delete(spec.Filters, "geometry")
	}
	return spec, nil
}

func decodeFile(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errs.Configf("failed to read %s: %w", path, err)
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		return errs.Configf("failed to parse %s: %w", path, err)
	}
	return nil
}
