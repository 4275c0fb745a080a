package geo

import (
	"math/rand"

	"gonum.org/v1/gonum/floats"
)

// DefaultKMeansIterations bounds Lloyd iterations in KMeans.
const DefaultKMeansIterations = 100

// KMeans partitions pts into k clusters on planar coordinates and returns
// the cluster label of every point, in input order.
//
// Seeding is k-means++ driven by rng, so labels are reproducible for a given
// stream. Distance ties go to the lowest cluster index. A cluster that loses
// all its points keeps its previous centroid.
// When k >= len(pts) every point gets its own cluster (labels 0..n-1).
func KMeans(pts []Point, k int, rng *rand.Rand, maxIter int) []int {
	n := len(pts)
	labels := make([]int, n)
	if n == 0 || k <= 1 {
		return labels
	}
	if k >= n {
		for i := range labels {
			labels[i] = i
		}
		return labels
	}
	if maxIter <= 0 {
		maxIter = DefaultKMeansIterations
	}

	centroids := seedPlusPlus(pts, k, rng)
	dists := make([]float64, k)
	lats := make([][]float64, k)
	lons := make([][]float64, k)

	for iter := 0; iter < maxIter; iter++ {
		changed := iter == 0
		for i, p := range pts {
			for c := range centroids {
				dists[c] = Planar(p, centroids[c])
			}
			label := floats.MinIdx(dists)
			if labels[i] != label {
				labels[i] = label
				changed = true
			}
		}
		if !changed {
			break
		}

		for c := range lats {
			lats[c] = lats[c][:0]
			lons[c] = lons[c][:0]
		}
		for i, p := range pts {
			lats[labels[i]] = append(lats[labels[i]], p.Lat)
			lons[labels[i]] = append(lons[labels[i]], p.Lon)
		}
		for c := range centroids {
			if len(lats[c]) == 0 {
				continue
			}
			m := float64(len(lats[c]))
			centroids[c] = Point{Lat: floats.Sum(lats[c]) / m, Lon: floats.Sum(lons[c]) / m}
		}
	}
	return labels
}

// seedPlusPlus picks k initial centroids: the first uniformly, the rest with
// probability proportional to squared distance from the nearest chosen one.
func seedPlusPlus(pts []Point, k int, rng *rand.Rand) []Point {
	centroids := make([]Point, 0, k)
	centroids = append(centroids, pts[rng.Intn(len(pts))])
	weights := make([]float64, len(pts))

	for len(centroids) < k {
		for i, p := range pts {
			best := Planar(p, centroids[0])
			for _, c := range centroids[1:] {
				if d := Planar(p, c); d < best {
					best = d
				}
			}
			weights[i] = best * best
		}
		total := floats.Sum(weights)
		if total == 0 {
			// All remaining points coincide with a centroid; take them in order.
			centroids = append(centroids, pts[len(centroids)%len(pts)])
			continue
		}
		target := rng.Float64() * total
		idx := len(pts) - 1
		acc := 0.0
		for i, w := range weights {
			acc += w
			if acc > target {
				idx = i
				break
			}
		}
		centroids = append(centroids, pts[idx])
	}
	return centroids
}
