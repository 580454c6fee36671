package auth

// Known OAuth scopes used by the reward pipeline surfaces.
const (
	ScopeActivitiesWrite    = "activities:write"
	ScopeActivitiesRead     = "activities:read"
	ScopeActivitiesModerate = "activities:moderate"
	ScopeLeaguesRead        = "leagues:read"
	ScopeLeaguesWrite       = "leagues:write"
)
