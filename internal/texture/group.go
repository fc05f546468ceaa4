package texture

import (
	"fmt"
	"strings"
)

// Group is the LOD group a texture belongs to.
type Group int

const (
	GroupWorld Group = iota
	GroupWorldNormalMap
	GroupWorldSpecular
	GroupCharacter
	GroupCharacterNormalMap
	GroupWeapon
	GroupVehicle
	GroupEffects
	GroupSkybox
	GroupUI
	GroupLightmap
	GroupShadowmap
	GroupTerrainHeightmap
	GroupTerrainWeightmap
	GroupHierarchicalLOD
	NumGroups
)

var groupNames = [NumGroups]string{
	"world",
	"world_normal_map",
	"world_specular",
	"character",
	"character_normal_map",
	"weapon",
	"vehicle",
	"effects",
	"skybox",
	"ui",
	"lightmap",
	"shadowmap",
	"terrain_heightmap",
	"terrain_weightmap",
	"hlod",
}

func (g Group) String() string {
	if g < 0 || g >= NumGroups {
		return fmt.Sprintf("group(%d)", int(g))
	}
	return groupNames[g]
}

// ParseGroup resolves a config key such as "lightmap" or "world_normal_map".
func ParseGroup(s string) (Group, error) {
	key := strings.ToLower(strings.TrimSpace(s))
	for i, n := range groupNames {
		if n == key {
			return Group(i), nil
		}
	}
	return 0, fmt.Errorf("unknown texture group %q", s)
}

// Groups returns every known group in declaration order.
func Groups() []Group {
	out := make([]Group, NumGroups)
	for i := range out {
		out[i] = Group(i)
	}
	return out
}

// IsTerrain reports heightmap and weightmap groups.
func (g Group) IsTerrain() bool {
	return g == GroupTerrainHeightmap || g == GroupTerrainWeightmap
}

// IsCharacter reports groups whose textures are kept and loaded first.
func (g Group) IsCharacter() bool {
	return g == GroupCharacter || g == GroupCharacterNormalMap
}
