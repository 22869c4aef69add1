package nav

import (
	"testing"
)

// benchGrid is a 64x64 layer with a few long walls so searches have
// to do real work instead of walking the diagonal.
func benchGrid() *Grid {
	g := flatGrid(64, 64)
	g.BlockRegion(Cell{X: 16, Y: 0, Z: 0}, Cell{X: 16, Y: 0, Z: 50})
	g.BlockRegion(Cell{X: 32, Y: 0, Z: 13}, Cell{X: 32, Y: 0, Z: 63})
	g.BlockRegion(Cell{X: 48, Y: 0, Z: 0}, Cell{X: 48, Y: 0, Z: 50})
	return g
}

func benchRequest(algo Algorithm) Request {
	return Request{
		Start:     cellCenter(1, 0, 1),
		Goal:      cellCenter(62, 0, 62),
		Type:      PathGround,
		Algorithm: algo,
		Heuristic: HeuristicOctile,
	}
}

func BenchmarkAStar(b *testing.B) {
	g := benchGrid()
	req := benchRequest(AlgoAStar)
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		res := runSearch(g, req)
		if res.Status != StatusSuccess {
			b.Fatalf("search failed: %s", res.FailureReason)
		}
	}
}

func BenchmarkThetaStar(b *testing.B) {
	g := benchGrid()
	req := benchRequest(AlgoThetaStar)
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		res := runSearch(g, req)
		if res.Status != StatusSuccess {
			b.Fatalf("search failed: %s", res.FailureReason)
		}
	}
}

func BenchmarkJPS(b *testing.B) {
	g := benchGrid()
	req := benchRequest(AlgoJPS)
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		res := runSearch(g, req)
		if res.Status != StatusSuccess {
			b.Fatalf("search failed: %s", res.FailureReason)
		}
	}
}

func BenchmarkFlowFieldBuild(b *testing.B) {
	g := benchGrid()
	goal := Cell{X: 62, Y: 0, Z: 62}
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		s := newSearch(g, benchRequest(AlgoFlowField), nil, nil)
		if f := s.buildFlowField(goal, 1<<20); f == nil {
			b.Fatal("flow field build failed")
		}
	}
}
