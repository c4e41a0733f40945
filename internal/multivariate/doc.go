// Package multivariate implements the post-stream analysis stages: principal
// component analysis over the frozen covariance matrix, k-means clustering
// with validity metrics and optimal-k selection, and Mahalanobis-distance
// outlier detection with covariance regularization.
//
// Each stage reports applicability explicitly instead of failing: a stage
// whose minimum-data precondition does not hold returns a not-applicable
// result carrying a human-readable reason, and sibling stages continue.
package multivariate
