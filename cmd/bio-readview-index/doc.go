/*Command bio-readview-index reads a coordinate-sorted .bam file and writes
  the .bai index that bio-readview needs to query it.  The bam file arrives
  on stdin, and the index is written to stdout.

  Usage: cat foo.bam | bio-readview-index > foo.bam.bai
*/
package main
