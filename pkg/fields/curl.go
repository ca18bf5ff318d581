package fields

import "github.com/edp1096/toy-pic/pkg/grid"

// CurlE writes curl(e) into dst, which is B-centered. Guard cells of e must
// be filled. The difference operator is the transpose of the one in CurlB,
// which is what makes the discrete field energy balance exact.
func CurlE(dst, e Vec3) {
	l := dst[X].Layout
	idx := 1 / l.Dx
	dst[X].Zero()
	_ = l.ForEachBox(func(b grid.Box) error {
		ey, ez := e[Y].V, e[Z].V
		cy, cz := dst[Y].V, dst[Z].V
		lo, hi := l.Span(b, 0)
		for i := lo; i < hi; i++ {
			cy[i] = -(ez[i+1] - ez[i]) * idx
			cz[i] = (ey[i+1] - ey[i]) * idx
		}
		return nil
	})
	dst[Y].FillBoundary()
	dst[Z].FillBoundary()
}

// CurlB writes curl(b) into dst, which is E-centered. Guard cells of b must
// be filled.
func CurlB(dst, b Vec3) {
	l := dst[X].Layout
	idx := 1 / l.Dx
	dst[X].Zero()
	_ = l.ForEachBox(func(bx grid.Box) error {
		by, bz := b[Y].V, b[Z].V
		cy, cz := dst[Y].V, dst[Z].V
		lo, hi := l.Span(bx, 0)
		for i := lo; i < hi; i++ {
			cy[i] = -(bz[i] - bz[i-1]) * idx
			cz[i] = (by[i] - by[i-1]) * idx
		}
		return nil
	})
	dst[Y].FillBoundary()
	dst[Z].FillBoundary()
}
