/*Package interval parses the genomic intervals that readview queries are
  issued for: region strings typed by a user ("chr1:1000-2000") and BED files
  listing many such regions.
  It assumes every position fits in a PosType, which is currently defined as
  int32 since that's what BAM files are limited to.
*/
package interval
