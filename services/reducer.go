package services

import (
	"context"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"

	"docatlas/internal/faults"
	"docatlas/internal/logger"
	"docatlas/internal/store"
	"docatlas/models"
)

// ReducerService projects chunk embeddings into 3D for the map view. Small
// corpora get plain PCA; larger ones get a neighbour-preserving layout
// seeded from PCA. Output is deterministic for a fixed seed and input order.
type ReducerService struct {
	store *store.Store
	seed  int64
}

func NewReducerService(st *store.Store, seed int64) *ReducerService {
	return &ReducerService{store: st, seed: seed}
}

const (
	pcaThreshold = 10
	coordScale   = 10.0
	layoutEpochs = 200
	minDist      = 0.1
)

// Run recomputes the whole 3D map and swaps it in atomically.
func (r *ReducerService) Run(ctx context.Context) error {
	ids, vectors, err := r.store.AllEmbeddings(ctx)
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		logger.Info("No embeddings to reduce")
		return r.store.Replace3D(ctx, nil)
	}

	coords, err := Reduce(vectors, r.seed)
	if err != nil {
		return err
	}

	points := make([]models.ChunkPoint, len(ids))
	for i, id := range ids {
		points[i] = models.ChunkPoint{ChunkID: id, X: coords[i][0], Y: coords[i][1], Z: coords[i][2]}
	}
	if err := r.store.Replace3D(ctx, points); err != nil {
		return err
	}
	logger.Info("3D map replaced", "points", len(points))
	return nil
}

// Reduce maps N input vectors to N 3D coordinates scaled to max|coord| = 10.
func Reduce(vectors [][]float32, seed int64) ([][3]float64, error) {
	n := len(vectors)
	if n == 0 {
		return nil, nil
	}
	d := len(vectors[0])
	for _, v := range vectors {
		if len(v) != d {
			return nil, faults.New(faults.Validation, "services.Reduce", "inconsistent vector dimensions")
		}
	}

	X := standardize(vectors)

	var coords [][3]float64
	if n < pcaThreshold {
		coords = pca3(X)
	} else {
		coords = neighbourLayout(X, seed)
	}

	return scaleCoords(coords, seed), nil
}

// standardize returns a zero-mean unit-variance copy of the vectors.
// Constant columns stay at zero.
func standardize(vectors [][]float32) *mat.Dense {
	n := len(vectors)
	d := len(vectors[0])
	X := mat.NewDense(n, d, nil)

	for j := 0; j < d; j++ {
		var sum float64
		for i := 0; i < n; i++ {
			sum += float64(vectors[i][j])
		}
		mean := sum / float64(n)

		var sq float64
		for i := 0; i < n; i++ {
			diff := float64(vectors[i][j]) - mean
			sq += diff * diff
		}
		std := math.Sqrt(sq / float64(n))

		for i := 0; i < n; i++ {
			if std > 0 {
				X.Set(i, j, (float64(vectors[i][j])-mean)/std)
			}
		}
	}
	return X
}

// pca3 projects onto the top min(3, N, D) principal components via SVD.
// Missing components pad with zeros.
func pca3(X *mat.Dense) [][3]float64 {
	n, d := X.Dims()
	k := 3
	if n < k {
		k = n
	}
	if d < k {
		k = d
	}

	var svd mat.SVD
	if !svd.Factorize(X, mat.SVDThin) {
		// Degenerate input; all-zero coordinates trigger the random
		// fallback downstream.
		return make([][3]float64, n)
	}
	var v mat.Dense
	svd.VTo(&v)

	coords := make([][3]float64, n)
	for i := 0; i < n; i++ {
		for c := 0; c < k; c++ {
			var dot float64
			for j := 0; j < d; j++ {
				dot += X.At(i, j) * v.At(j, c)
			}
			coords[i][c] = dot
		}
	}
	return coords
}

// neighbourLayout refines a PCA initialisation so cosine neighbours stay
// close: each epoch attracts points toward their k nearest neighbours and
// repulses them from a random sample. Deterministic for a fixed seed.
func neighbourLayout(X *mat.Dense, seed int64) [][3]float64 {
	n, _ := X.Dims()
	coords := pca3(X)
	rng := rand.New(rand.NewSource(seed))

	k := n - 1
	if k > 15 {
		k = 15
	}
	if k < 2 {
		k = 2
	}
	neighbours := nearestNeighbours(X, k)

	for epoch := 0; epoch < layoutEpochs; epoch++ {
		lr := 0.1 * (1.0 - float64(epoch)/float64(layoutEpochs))
		for i := 0; i < n; i++ {
			for _, j := range neighbours[i] {
				moveToward(&coords[i], coords[j], lr, minDist)
			}
			// One random repulsion per point keeps clusters from collapsing.
			j := rng.Intn(n)
			if j != i {
				moveAway(&coords[i], coords[j], lr*0.3, minDist)
			}
		}
	}
	return coords
}

// nearestNeighbours returns the k nearest rows per row by cosine distance.
func nearestNeighbours(X *mat.Dense, k int) [][]int {
	n, d := X.Dims()
	norms := make([]float64, n)
	for i := 0; i < n; i++ {
		var s float64
		for j := 0; j < d; j++ {
			v := X.At(i, j)
			s += v * v
		}
		norms[i] = math.Sqrt(s)
	}

	out := make([][]int, n)
	for i := 0; i < n; i++ {
		type pair struct {
			idx  int
			dist float64
		}
		dists := make([]pair, 0, n-1)
		for j := 0; j < n; j++ {
			if j == i {
				continue
			}
			var dot float64
			for c := 0; c < d; c++ {
				dot += X.At(i, c) * X.At(j, c)
			}
			dist := 1.0
			if norms[i] > 0 && norms[j] > 0 {
				dist = 1.0 - dot/(norms[i]*norms[j])
			}
			dists = append(dists, pair{j, dist})
		}
		// Partial selection sort: only the first k positions matter.
		for a := 0; a < k && a < len(dists); a++ {
			min := a
			for b := a + 1; b < len(dists); b++ {
				if dists[b].dist < dists[min].dist {
					min = b
				}
			}
			dists[a], dists[min] = dists[min], dists[a]
		}
		nbrs := make([]int, 0, k)
		for a := 0; a < k && a < len(dists); a++ {
			nbrs = append(nbrs, dists[a].idx)
		}
		out[i] = nbrs
	}
	return out
}

func moveToward(p *[3]float64, q [3]float64, lr, floor float64) {
	dx := q[0] - p[0]
	dy := q[1] - p[1]
	dz := q[2] - p[2]
	dist := math.Sqrt(dx*dx + dy*dy + dz*dz)
	if dist <= floor {
		return
	}
	p[0] += dx * lr
	p[1] += dy * lr
	p[2] += dz * lr
}

func moveAway(p *[3]float64, q [3]float64, lr, floor float64) {
	dx := p[0] - q[0]
	dy := p[1] - q[1]
	dz := p[2] - q[2]
	dist := math.Sqrt(dx*dx + dy*dy + dz*dz)
	if dist < floor {
		dist = floor
	}
	scale := lr / dist
	p[0] += dx * scale
	p[1] += dy * scale
	p[2] += dz * scale
}

// scaleCoords rescales uniformly so max|coord| = 10. All-zero output falls
// back to seeded uniform random in [-1,1]³.
func scaleCoords(coords [][3]float64, seed int64) [][3]float64 {
	var maxAbs float64
	for _, c := range coords {
		for _, v := range c {
			if a := math.Abs(v); a > maxAbs {
				maxAbs = a
			}
		}
	}
	if maxAbs == 0 {
		rng := rand.New(rand.NewSource(seed))
		for i := range coords {
			for j := 0; j < 3; j++ {
				coords[i][j] = rng.Float64()*2 - 1
			}
		}
		return coords
	}
	factor := coordScale / maxAbs
	for i := range coords {
		for j := 0; j < 3; j++ {
			coords[i][j] *= factor
		}
	}
	return coords
}
