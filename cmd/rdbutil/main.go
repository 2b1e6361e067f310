package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/bitmark-inc/logger"
	"github.com/pkg/errors"

	"github.com/ndlib/assetdb/assets"
	"github.com/ndlib/assetdb/config"
	"github.com/ndlib/assetdb/gpu"
	"github.com/ndlib/assetdb/journal"
	"github.com/ndlib/assetdb/rdb"
	"github.com/ndlib/assetdb/terrain"
)

var (
	configFile = flag.String("config-file", "", "configuration file; if given it sets the store and journal")
	storeFile  = flag.String("s", "assets.rdb", "store file")
	author     = flag.String("author", "rdbutil", "author recorded on new ops")
	usage      = `
rdbutil <command> <command arguments>

Possible commands:
    list [prefix]

    dump <entry name>

    init <project>

    build <project> <lod> all
    build <project> <lod> <x_y list>

    edit <project> <layer> <kind> <x> <y> <z> <radius> [strength]

    toggle <project> <layer> <op id> on|off

    import <project> <export file>

    migrate <project>

    journal <project> [limit]

    upload <model name>
`
)

var log *logger.L

func main() {
	flag.Usage = func() {
		fmt.Fprint(os.Stderr, usage)
		flag.PrintDefaults()
	}
	flag.Parse()

	conf, err := loadConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if err := logger.Initialise(conf.Logging); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer logger.Finalise()
	log = logger.New("rdbutil")

	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		return
	}

	fmt.Printf("Using store %s\n", conf.Store)
	switch {
	case args[0] == "list":
		err = dolist(conf.Store, args[1:])
	case args[0] == "dump" && len(args) == 2:
		err = dodump(conf.Store, args[1])
	case args[0] == "init" && len(args) == 2:
		err = doinit(conf.Store, args[1])
	case args[0] == "build" && len(args) >= 4:
		err = dobuild(conf, args[1], args[2], args[3:])
	case args[0] == "edit" && len(args) >= 8:
		err = doedit(conf.Store, args[1], args[2], args[3], args[4:])
	case args[0] == "toggle" && len(args) == 5:
		err = dotoggle(conf.Store, args[1], args[2], args[3], args[4])
	case args[0] == "import" && len(args) == 3:
		err = doimport(conf.Store, args[1], args[2])
	case args[0] == "migrate" && len(args) == 2:
		err = domigrate(conf.Store, args[1])
	case args[0] == "journal" && len(args) >= 2:
		err = dojournal(conf, args[1], args[2:])
	case args[0] == "upload" && len(args) == 2:
		err = doupload(conf.Store, args[1])
	default:
		flag.Usage()
		os.Exit(2)
	}
	if err != nil {
		fmt.Println("Error:", err)
		os.Exit(1)
	}
}

// loadConfig reads the configuration file if one is given. Otherwise the
// store comes from -s, logs go to the temp directory and builds are not
// journaled.
func loadConfig() (*config.Configuration, error) {
	if *configFile != "" {
		return config.Load(*configFile)
	}
	conf := config.Default()
	wd, err := os.Getwd()
	if err != nil {
		return nil, err
	}
	conf.Store = config.EnsureAbsolute(wd, *storeFile)
	conf.Journal.Driver = ""
	conf.Logging.Directory = os.TempDir()
	conf.Logging.File = "rdbutil.log"
	return conf, nil
}

// modify loads the store, applies f, and saves it if f reports a change.
// A missing store is created when create is true.
func modify(path string, create bool, f func(b *rdb.Builder) (bool, error)) error {
	b, err := rdb.Load(path)
	if os.IsNotExist(err) && create {
		b, err = rdb.NewBuilder(), nil
	}
	if err != nil {
		return err
	}
	changed, err := f(b)
	if err != nil {
		return err
	}
	if !changed {
		fmt.Println("No changes")
		return nil
	}
	fmt.Printf("Saving %d entries\n", b.Len())
	return b.Save(path)
}

func dolist(path string, args []string) error {
	v, err := rdb.Open(path)
	if err != nil {
		return err
	}
	defer v.Close()
	var prefix string
	if len(args) > 0 {
		prefix = args[0]
	}
	w := tabwriter.NewWriter(os.Stdout, 5, 1, 3, ' ', 0)
	fmt.Fprintf(w, "Name\tType\tOffset\tSize\n")
	for _, e := range rdb.EntriesWithPrefix(v, prefix) {
		fmt.Fprintf(w, "%s\t%08x\t%d\t%d\n", e.Name, e.TypeTag, e.Offset, e.Len)
	}
	return w.Flush()
}

func dodump(path, name string) error {
	v, err := rdb.Open(path)
	if err != nil {
		return err
	}
	defer v.Close()
	data, err := v.EntryBytes(name)
	if err != nil {
		return err
	}
	_, err = os.Stdout.Write(data)
	return err
}

func doinit(path, project string) error {
	return modify(path, true, func(b *rdb.Builder) (bool, error) {
		before := b.Len()
		if err := assets.SeedDefaults(b); err != nil {
			return false, err
		}
		wrote, err := terrain.InitProject(b, project)
		return wrote || b.Len() != before, err
	})
}

func dobuild(conf *config.Configuration, project, lodArg string, coords []string) error {
	lod, err := strconv.ParseUint(lodArg, 10, 8)
	if err != nil {
		return errors.Wrapf(err, "lod %q", lodArg)
	}
	p := &terrain.Pipeline{Log: log}
	if conf.Journal.Driver != "" {
		j, err := journal.Open(conf.Journal.Driver, conf.Journal.DSN)
		if err != nil {
			return err
		}
		defer j.Close()
		p.Journal = j
	}
	return modify(conf.Store, false, func(b *rdb.Builder) (bool, error) {
		var reqs []terrain.BuildRequest
		if len(coords) == 1 && coords[0] == "all" {
			settings, err := rdb.Fetch[terrain.ProjectSettings](b, terrain.SettingsKey(project))
			if err != nil {
				return false, err
			}
			lo, hi := settings.ChunkRange()
			for y := lo.Y; y <= hi.Y; y++ {
				for x := lo.X; x <= hi.X; x++ {
					reqs = append(reqs, terrain.BuildRequest{Coord: terrain.ChunkCoord{X: x, Y: y}, LOD: uint8(lod)})
				}
			}
		} else {
			for _, s := range coords {
				c, err := terrain.ParseChunkCoord(s)
				if err != nil {
					return false, err
				}
				reqs = append(reqs, terrain.BuildRequest{Coord: c, LOD: uint8(lod)})
			}
		}
		start := time.Now()
		report, err := p.Build(b, project, reqs)
		if err != nil {
			return false, err
		}
		fmt.Printf("Built %d, skipped %d, %d states updated (%s)\n",
			report.BuiltChunks, report.SkippedChunks, report.UpdatedStates, time.Since(start))
		return report.BuiltChunks+report.UpdatedStates > 0, nil
	})
}

func parseFloats(args []string) ([]float32, error) {
	var result []float32
	for _, a := range args {
		f, err := strconv.ParseFloat(a, 32)
		if err != nil {
			return nil, errors.Wrapf(err, "number %q", a)
		}
		result = append(result, float32(f))
	}
	return result, nil
}

func doedit(path, project, layer, kind string, args []string) error {
	k, ok := terrain.ParseOpKind(kind)
	if !ok {
		return errors.Errorf("unknown op kind %q", kind)
	}
	if k == terrain.CapsuleAdd || k == terrain.CapsuleSubtract {
		return errors.New("capsules are only supported through import")
	}
	nums, err := parseFloats(args)
	if err != nil {
		return err
	}
	op := terrain.MutationOp{
		Enabled:  true,
		Kind:     k,
		Center:   [3]float32{nums[0], nums[1], nums[2]},
		Radius:   nums[3],
		Strength: 1,
		Author:   *author,
	}
	if len(nums) > 4 {
		op.Strength = nums[4]
	}
	return modify(path, false, func(b *rdb.Builder) (bool, error) {
		stored, coords, err := terrain.AppendMutationOp(b, project, layer, op)
		if err != nil {
			return false, err
		}
		fmt.Printf("Op %d event %d, %d chunks dirty\n", stored.OpID, stored.EventID, len(coords))
		return true, nil
	})
}

func dotoggle(path, project, layer, idArg, state string) error {
	id, err := strconv.ParseUint(idArg, 10, 64)
	if err != nil {
		return errors.Wrapf(err, "op id %q", idArg)
	}
	var enabled bool
	switch strings.ToLower(state) {
	case "on":
		enabled = true
	case "off":
	default:
		return errors.Errorf("expected on or off, got %q", state)
	}
	return modify(path, false, func(b *rdb.Builder) (bool, error) {
		stored, coords, err := terrain.SetOpEnabled(b, project, layer, id, enabled)
		if err != nil {
			return false, err
		}
		fmt.Printf("Op %d event %d, %d chunks dirty\n", stored.OpID, stored.EventID, len(coords))
		return true, nil
	})
}

func doimport(path, project, fname string) error {
	f, err := os.Open(fname)
	if err != nil {
		return err
	}
	defer f.Close()
	return modify(path, false, func(b *rdb.Builder) (bool, error) {
		report, err := terrain.ImportOpsJSON(b, f, project, log)
		if err != nil {
			return false, err
		}
		fmt.Printf("Imported %d (%d upgraded), skipped %d, %d chunks dirty\n",
			report.Imported, report.Upgraded, report.Skipped, report.Dirtied)
		return report.Imported > 0, nil
	})
}

func domigrate(path, project string) error {
	return modify(path, false, func(b *rdb.Builder) (bool, error) {
		report, err := terrain.MigrateLegacyChunks(b, project, log)
		if err != nil {
			return false, err
		}
		fmt.Printf("Migrated %d, skipped %d\n", report.Migrated, report.Skipped)
		return report.Migrated > 0, nil
	})
}

func dojournal(conf *config.Configuration, project string, args []string) error {
	if conf.Journal.Driver == "" {
		return errors.New("no journal configured; use -config-file")
	}
	limit := 20
	if len(args) > 0 {
		n, err := strconv.Atoi(args[0])
		if err != nil {
			return errors.Wrapf(err, "limit %q", args[0])
		}
		limit = n
	}
	j, err := journal.Open(conf.Journal.Driver, conf.Journal.DSN)
	if err != nil {
		return err
	}
	defer j.Close()
	entries, err := j.Recent(project, limit)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(os.Stdout, 5, 1, 3, ' ', 0)
	fmt.Fprintf(w, "ID\tStarted\tElapsed\tBuilt\tSkipped\tUpdated\n")
	for _, e := range entries {
		fmt.Fprintf(w, "%d\t%s\t%s\t%d\t%d\t%d\n", e.ID, e.Started.Format(time.RFC3339),
			e.Elapsed, e.BuiltChunks, e.SkippedChunks, e.UpdatedStates)
	}
	return w.Flush()
}

// doupload assembles a model against a headless device, to check that every
// part, material and image it names resolves.
func doupload(path, model string) error {
	v, err := rdb.Open(path)
	if err != nil {
		return err
	}
	defer v.Close()
	lib, err := assets.NewLibrary(gpu.NewHeadless(), v)
	if err != nil {
		return err
	}
	defer lib.Close()
	if !strings.HasPrefix(model, assets.ModelPrefix) {
		model = assets.ModelKey(model)
	}
	a, err := lib.AcquireModel(model)
	if err != nil {
		return err
	}
	defer lib.ReleaseModel(a)
	w := tabwriter.NewWriter(os.Stdout, 5, 1, 3, ' ', 0)
	fmt.Fprintf(w, "Part\tParent\tGeometry\tIndices\tMaterial\n")
	for i, p := range a.Parts {
		fmt.Fprintf(w, "%s\t%d\t%s\t%d\t%s\n", p.Name, p.Parent, a.Geometries[i], p.Geometry.IndexCount, p.Material.Name)
	}
	w.Flush()
	fmt.Printf("Images: %s\n", strings.Join(a.Images, ", "))
	return nil
}
