package reasoning

import (
	"context"

	"github.com/cloudwego/eino/components/model"
	"go.uber.org/fx"
)

var FXModule = fx.Module("reasoning",
	fx.Provide(
		func(cfg Config) (model.BaseChatModel, error) {
			return NewChatModel(context.Background(), cfg)
		},
		NewReasoner,
	),
)
