// Command mkfs.ssdfs builds a fresh SSDFS volume image offline: it derives
// the volume geometry, runs the five-subsystem/five-phase driver, validates
// the resulting layout and writes it to a device or image file (spec §2,
// §6.1).
package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/ssdfs/mkfs-go/internal/committer"
	"github.com/ssdfs/mkfs-go/internal/devops"
	"github.com/ssdfs/mkfs-go/internal/driver"
	"github.com/ssdfs/mkfs-go/internal/geometry"
)

const progName = "mkfs.ssdfs"

const usageText = `Usage: mkfs.ssdfs [options] <device|image-file>
Options:
  -s size   segment size (default 8MB)
  -e size   erase block size (default 8MB)
  -p size   page size (default 4KB)
  -D count  NAND dies count (default 1)
  -f        force: overwrite a mounted or already-formatted device
  -K        skip erase pass before writing
  -L label  volume label (up to 10 bytes)
  -C mode   compression: none|zlib|lzo (default none)
  -m count  migration threshold
  -i size   inode size, 256..4096 (default 256)
  -B opts   block bitmap subsystem options (key=value,...)
  -O opts   offsets table subsystem options (key=value,...)
  -S opts   segment bitmap subsystem options (key=value,...)
  -M opts   mapping table subsystem options (key=value,...)
  -U opts   user data segment subsystem options (key=value,...)
  -T opts   btree subsystem options (key=value,...)
  -d        debug: verbose logging
  -q        quiet: suppress all logging
  -h        print this help and exit
  -V        print version and exit
`

func usage() {
	fmt.Fprint(os.Stderr, usageText)
}

type options struct {
	segSize   string
	eraseSize string
	pageSize  string
	nandDies  uint
	force     bool
	skipErase bool
	label     string
	compress  string
	migration uint
	inodeSize uint
	blkbmap   string
	offsets   string
	segbmap   string
	maptbl    string
	userData  string
	btree     string
	debug     bool
	quiet     bool
	version   bool
}

func main() {
	log.SetFlags(0)
	log.SetPrefix("")

	var o options
	fset := flag.NewFlagSet(progName, flag.ContinueOnError)
	fset.Usage = usage
	fset.StringVar(&o.segSize, "s", "8MB", "segment size")
	fset.StringVar(&o.eraseSize, "e", "8MB", "erase block size")
	fset.StringVar(&o.pageSize, "p", "4KB", "page size")
	fset.UintVar(&o.nandDies, "D", 1, "NAND dies count")
	fset.BoolVar(&o.force, "f", false, "force overwrite")
	fset.BoolVar(&o.skipErase, "K", false, "skip erase pass")
	fset.StringVar(&o.label, "L", "", "volume label")
	fset.StringVar(&o.compress, "C", "none", "compression: none|zlib|lzo")
	fset.UintVar(&o.migration, "m", 0, "migration threshold")
	fset.UintVar(&o.inodeSize, "i", geometry.MinInodeSize, "inode size")
	fset.StringVar(&o.blkbmap, "B", "", "block bitmap options")
	fset.StringVar(&o.offsets, "O", "", "offsets table options")
	fset.StringVar(&o.segbmap, "S", "", "segment bitmap options")
	fset.StringVar(&o.maptbl, "M", "", "mapping table options")
	fset.StringVar(&o.userData, "U", "", "user data segment options")
	fset.StringVar(&o.btree, "T", "", "btree options")
	fset.BoolVar(&o.debug, "d", false, "debug logging")
	fset.BoolVar(&o.quiet, "q", false, "quiet")
	fset.BoolVar(&o.version, "V", false, "print version")

	if err := fset.Parse(os.Args[1:]); err != nil {
		if err == flag.ErrHelp {
			os.Exit(0)
		}
		os.Exit(1)
	}

	if o.version {
		fmt.Println(progName + ", part of ssdfs-utils-go")
		os.Exit(0)
	}

	if o.quiet {
		log.SetOutput(io.Discard)
	} else if o.debug {
		log.SetFlags(log.Ltime | log.Lmicroseconds)
	}

	args := fset.Args()
	if len(args) != 1 {
		usage()
		os.Exit(1)
	}

	if err := run(args[0], o); err != nil {
		fmt.Fprintln(os.Stderr, diagnostic(err))
		os.Exit(1)
	}
}

func run(path string, o options) error {
	segSize, err := geometry.ParseSize(o.segSize)
	if err != nil {
		return err
	}
	eraseSize, err := geometry.ParseSize(o.eraseSize)
	if err != nil {
		return err
	}
	pageSize, err := geometry.ParseSize(o.pageSize)
	if err != nil {
		return err
	}
	if err := geometry.ValidateInodeSize(uint32(o.inodeSize)); err != nil {
		return err
	}

	volumeSize, err := devops.Size(path)
	if err != nil {
		return err
	}

	log.Printf("%s: device %s, volume_size=%d", progName, path, volumeSize)

	dev, err := devops.Open(path, o.force)
	if err != nil {
		return err
	}
	defer dev.Close()

	zoned, zoneSize, err := probeZoned(dev, uint32(eraseSize), uint32(pageSize))
	if err != nil {
		return err
	}

	geo, err := geometry.New(uint32(pageSize), uint32(eraseSize), segSize, volumeSize, uint32(o.nandDies), zoned, zoneSize)
	if err != nil {
		return err
	}
	if geo.Zoned && geo.UnalignedZone {
		log.Printf("%s: zoned device reports zone size %d; geometry adjusted accordingly", progName, zoneSize)
	}
	log.Printf("%s: geometry: %s", progName, geo)

	blkbmapOpts := parseOptset(o.blkbmap)
	offsetsOpts := parseOptset(o.offsets)
	segbmapOpts := parseOptset(o.segbmap)
	maptblOpts := parseOptset(o.maptbl)
	userDataOpts := parseOptset(o.userData)
	btreeOpts := parseOptset(o.btree)

	// Allowed keys per option group, grounded on original_source's
	// options.c longopts tables (blkbmap_tokens, offset_table_tokens,
	// segbmap_tokens, maptbl_tokens, dataseg_tokens, btree_tokens).
	if err := blkbmapOpts.validate("blkbmap", "has_copy", "compression"); err != nil {
		return err
	}
	if err := offsetsOpts.validate("offsets_table", "has_copy", "compression"); err != nil {
		return err
	}
	if err := segbmapOpts.validate("segbmap", "has_copy", "segs_per_chain", "fragments_per_peb", "log_pages", "migration_threshold", "compression"); err != nil {
		return err
	}
	if err := maptblOpts.validate("maptbl", "has_copy", "stripes_per_fragment", "fragments_per_peb", "log_pages", "migration_threshold", "compression", "portions_per_fragment", "reserved_pct", "pebs_per_stripe"); err != nil {
		return err
	}
	if err := userDataOpts.validate("user_data_segment", "log_pages", "migration_threshold", "compression"); err != nil {
		return err
	}
	if err := btreeOpts.validate("btree", "node_size", "min_index_area_size", "leaf_node_log_pages", "hybrid_node_log_pages", "index_node_log_pages"); err != nil {
		return err
	}
	// blkbmap/offsets_table/user_data_segment/btree carry no builder-time
	// knob beyond validation in this implementation; their values are
	// accepted and checked for forward compatibility (SPEC_FULL.md "-U/-T
	// option groups") but do not yet feed the driver.

	compressors := compressorList(o.compress, maptblOpts.string("compression", ""), segbmapOpts.string("compression", ""))

	cfg := driver.Config{
		Geometry:                  geo,
		Label:                     o.label,
		MigrationThreshold:        uint32(o.migration),
		Compressors:               compressors,
		MaptblPortionsPerFragment: maptblOpts.int("portions_per_fragment", 0),
		MaptblReservedPct:         maptblOpts.int("reserved_pct", 0),
		PebsPerStripe:             uint64(maptblOpts.int("pebs_per_stripe", 0)),
		UID:                       uint32(os.Getuid()),
		GID:                       uint32(os.Getgid()),
		Device:                    dev,
	}

	result, err := driver.Run(cfg)
	if err != nil {
		return err
	}

	log.Printf("%s: writing %d PEBs", progName, len(result.PEBs))
	return committer.Commit(dev, result, committer.Options{SkipErase: o.skipErase})
}

// probeZoned asks the device to verify/correct its geometry (spec §6.3 item
// 4, Design Note §9); non-zoned backends report no change.
func probeZoned(dev devops.Device, eraseSize, pageSize uint32) (zoned bool, zoneSize uint64, err error) {
	g := &devops.Geometry{PageSize: pageSize, EraseSize: eraseSize}
	if _, err := dev.CheckNANDGeometry(g); err != nil {
		return false, 0, err
	}
	return g.Zoned, g.ZoneSize, nil
}

// compressorList folds the global -C flag and any per-subsystem
// compression= override into the feature_compat_ro bit set the superblock
// subsystem consumes (spec §8.4 scenario 3).
func compressorList(global string, overrides ...string) []string {
	seen := make(map[string]bool)
	var out []string
	add := func(name string) {
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "" || name == "none" || seen[name] {
			return
		}
		seen[name] = true
		out = append(out, name)
	}
	add(global)
	for _, o := range overrides {
		add(o)
	}
	return out
}

// diagnostic renders err per spec §7: "mkfs.<fsname>: <source>:<line>:
// <func>(): <message>", extracting the innermost xerrors.Errorf call site
// from the error's %+v rendering (the teacher's own error-wrapping idiom in
// cmd/distri/log.go never needed this, since distri's top level only ever
// logs err.Error()+"\n"; mkfs.ssdfs additionally names the frame because
// spec §7 requires it of every user-visible failure).
func diagnostic(err error) string {
	file, line, fn := frameOf(err)
	return fmt.Sprintf("%s: %s:%s:%s(): %s", progName, file, line, fn, err.Error())
}

func frameOf(err error) (file, line, fn string) {
	file, line, fn = "?", "?", "?"
	detail := fmt.Sprintf("%+v", err)
	lines := strings.Split(detail, "\n")
	for i := 0; i+1 < len(lines); i++ {
		l := lines[i+1]
		if !strings.HasPrefix(l, "\t") {
			continue
		}
		idx := strings.LastIndex(l, ":")
		if idx <= 1 {
			continue
		}
		if _, err := strconv.Atoi(l[idx+1:]); err != nil {
			continue
		}
		file = strings.TrimSpace(l[1:idx])
		line = l[idx+1:]
		fn = strings.TrimSpace(lines[i])
		if dot := strings.LastIndexByte(fn, '.'); dot >= 0 {
			fn = fn[dot+1:]
		}
		return
	}
	return
}
