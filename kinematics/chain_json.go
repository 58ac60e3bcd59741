package kinematics

import (
	_ "embed"
	"encoding/json"
	"os"
	"sync"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/pkg/errors"
	"github.com/samber/lo"

	"github.com/robosim/armcore/kinematics/kinmath"
	"github.com/robosim/armcore/referenceframe"
)

//go:embed so101.json
var so101JSON []byte

// ErrNoChainInformation is used when there is no chain information.
var ErrNoChainInformation = errors.New("no kinematic chain information")

// LinkConfig is one rigid link of the chain: a fixed origin and, for revolute links, the joint that
// rotates about Axis after the origin is applied. A link with an empty Joint is fixed.
type LinkConfig struct {
	Name  string                   `json:"name"`
	Joint referenceframe.JointName `json:"joint,omitempty"`
	XYZ   [3]float64               `json:"xyz"`
	RPY   [3]float64               `json:"rpy"`
	Axis  [3]float64               `json:"axis,omitempty"`
}

// ChainConfigJSON represents all supported fields in a kinematic chain JSON file.
type ChainConfigJSON struct {
	Name      string       `json:"name"`
	Links     []LinkConfig `json:"links"`
	JawOffset [3]float64   `json:"jaw_offset"`
}

// UnmarshalChainJSON parses the given JSON data into a Chain. chainName overrides the name in the
// JSON when non-empty.
func UnmarshalChainJSON(jsonData []byte, chainName string) (*Chain, error) {
	if len(jsonData) == 0 {
		return nil, ErrNoChainInformation
	}

	cfg := &ChainConfigJSON{}
	if err := json.Unmarshal(jsonData, cfg); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal json file")
	}
	return cfg.ParseConfig(chainName)
}

// ParseChainFile reads a chain JSON file from disk.
func ParseChainFile(path, chainName string) (*Chain, error) {
	//nolint:gosec
	jsonData, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read chain file")
	}
	return UnmarshalChainJSON(jsonData, chainName)
}

// ParseConfig converts the config into a Chain.
func (cfg *ChainConfigJSON) ParseConfig(chainName string) (*Chain, error) {
	if chainName == "" {
		chainName = cfg.Name
	}
	if len(cfg.Links) == 0 {
		return nil, ErrNoChainInformation
	}

	chain := &Chain{
		name:   chainName,
		links:  make([]link, 0, len(cfg.Links)),
		limits: referenceframe.DefaultJointLimits(),
	}
	seen := map[referenceframe.JointName]bool{}
	for i, lc := range cfg.Links {
		l := link{
			origin: kinmath.NewTransformFromOrigin(mgl64.Vec3(lc.XYZ), mgl64.Vec3(lc.RPY)),
			joint:  lc.Joint,
		}
		if lc.Joint != "" {
			if !lo.Contains(referenceframe.ArmJoints, lc.Joint) {
				return nil, referenceframe.NewUnknownJointError(string(lc.Joint))
			}
			if seen[lc.Joint] {
				return nil, errors.Errorf("joint %q appears in more than one link", lc.Joint)
			}
			seen[lc.Joint] = true
			l.axis = mgl64.Vec3(lc.Axis)
			if l.axis.Len() == 0 {
				return nil, errors.Errorf("link %d (%s) has joint %q but no rotation axis", i, lc.Name, lc.Joint)
			}
		}
		chain.links = append(chain.links, l)
	}
	chain.jaw = kinmath.NewTransformFromTranslation(cfg.JawOffset[0], cfg.JawOffset[1], cfg.JawOffset[2])
	return chain, nil
}

var defaultChain = sync.OnceValues(func() (*Chain, error) {
	return UnmarshalChainJSON(so101JSON, "")
})

// SO101 returns the SO-101 chain built from the embedded joint table.
func SO101() *Chain {
	chain, err := defaultChain()
	if err != nil {
		panic(errors.Wrap(err, "embedded so101 chain is invalid"))
	}
	return chain
}
