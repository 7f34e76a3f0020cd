package sqlstore

import "github.com/goliatone/go-login/core"

var (
	_ core.ActivitySink            = (*ActivityStore)(nil)
	_ core.ActivityReader          = (*ActivityStore)(nil)
	_ core.ActivityRetentionPruner = (*ActivityStore)(nil)
	_ core.ActivitySink            = (*CachedActivityStore)(nil)
	_ core.ActivityReader          = (*CachedActivityStore)(nil)
	_ core.ActivityRetentionPruner = (*CachedActivityStore)(nil)
)
