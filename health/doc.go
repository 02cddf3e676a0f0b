// Package health reports the health of a response cache.
//
// A Checker reports Healthy, Degraded or Unhealthy. StoreChecker watches the
// share of cache entries waiting for a refetch, FetchChecker the share of
// keys whose last network call failed, and CircuitChecker the state of the
// fetch circuit breaker. An Aggregator runs a set of checkers and combines
// their results.
//
//	agg := health.NewAggregator()
//	agg.Register("store", health.NewStoreChecker(ctrl, health.StoreCheckerConfig{}))
//	agg.Register("fetch", health.NewFetchChecker(coordinator, health.FetchCheckerConfig{}))
//
//	results := agg.CheckAll(ctx)
//	overall := agg.OverallStatus(results)
//
// LivenessHandler, ReadinessHandler and DetailedHandler expose the aggregator
// over HTTP; Mount registers all three on a chi router.
package health
