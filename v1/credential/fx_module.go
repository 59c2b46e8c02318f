package credential

import "go.uber.org/fx"

// FXModule provides the Issuer selected by Config.Mode.
var FXModule = fx.Module("credential",
	fx.Provide(NewIssuer),
)

// NewIssuer builds the issuer for cfg.Mode.
func NewIssuer(cfg Config) (Issuer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Mode == ModeHTTP {
		return NewHTTPIssuer(cfg)
	}
	return NewStaticIssuer(cfg.Password, cfg.Validity), nil
}
