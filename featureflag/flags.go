package featureflag

type Flag string

const (
	// FlagExcludeUnreachable drops unreachable hiding spots from every search,
	// whatever the request asks for.
	FlagExcludeUnreachable Flag = "EXCLUDE_UNREACHABLE"

	FlagDisableCandidateStream Flag = "DISABLE_CANDIDATE_STREAM"
)
