/*
Package quadgen builds linearized QuadToneRIP .quad curves.

A Controller holds a loaded .quad file together with the ink ceiling of each
channel. Applying a correction (a 1D LUT or a set of L* measurements)
rewrites the channel curves. Measured corrections that touch several inked
channels are spread across them by a composite redistribution session that
keeps every channel under its ceiling; other corrections are applied to each
channel on its own. When auto-raise is enabled, ceilings that the correction
cannot fit under are lifted and the correction is applied again.
*/
package quadgen

import "fmt"

type BuildVersion struct {
	Major, Minor, Patch uint
}

func (v BuildVersion) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

func (v BuildVersion) Equal(o BuildVersion) bool {
	return v.Major == o.Major && v.Minor == o.Minor && v.Patch == o.Patch
}

func (v BuildVersion) After(o BuildVersion) bool {
	switch {
	case v.Major != o.Major:
		return v.Major > o.Major
	case v.Minor != o.Minor:
		return v.Minor > o.Minor
	}
	return v.Patch > o.Patch
}

func (v BuildVersion) Before(o BuildVersion) bool {
	return !v.Equal(o) && !v.After(o)
}

var Version = BuildVersion{4, 2, 0}
